package api

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/internal/domain/meta"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
	maxTitleLength  = 100
	maxNotesLength  = 1000
)

type goalResponse struct {
	ledger.GoalView
	Meta *meta.Entry `json:"meta,omitempty"`
}

type challengeResponse struct {
	ledger.Challenge
	Phase ledger.ChallengePhase `json:"phase"`
	Pool  int64                 `json:"pool"`
	Meta  *meta.Entry           `json:"meta,omitempty"`
}

type createGoalRequest struct {
	Amount      int64     `json:"amount"`
	Deadline    time.Time `json:"deadline"`
	Description string    `json:"description"`
	Title       string    `json:"title"`
}

type createChallengeRequest struct {
	Description string    `json:"description"`
	Goal        string    `json:"goal"`
	EntryFee    int64     `json:"entry_fee"`
	StartTime   time.Time `json:"start_time"`
	Deadline    time.Time `json:"deadline"`
	Title       string    `json:"title"`
}

type claimRequest struct {
	To string `json:"to"`
}

type beneficiaryRequest struct {
	Beneficiary string `json:"beneficiary"`
}

type metaRequest struct {
	Title string `json:"title"`
	Notes string `json:"notes"`
}

func recordID(c *fiber.Ctx) (uint64, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	return id, err == nil && id > 0
}

func pageSize(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", defaultPageSize)
	if limit <= 0 {
		return defaultPageSize
	}
	return min(limit, maxPageSize)
}

// parseBody tolerates an empty body for commands whose fields are all optional.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(out)
}

func (s *Server) entry(c *fiber.Ctx, kind meta.Kind, id uint64) *meta.Entry {
	if s.meta == nil {
		return nil
	}
	e := s.meta.Get(c.UserContext(), kind, id)
	if e.IsZero() {
		return nil
	}
	return &e
}

func (s *Server) goalResponse(c *fiber.Ctx, g ledger.Goal) goalResponse {
	return goalResponse{
		GoalView: ledger.GoalView{Goal: g, Status: ledger.GoalStatusOf(g, s.query.Now())},
		Meta:     s.entry(c, meta.KindGoal, g.ID),
	}
}

func (s *Server) challengeResponse(c *fiber.Ctx, ch ledger.Challenge) challengeResponse {
	return challengeResponse{
		Challenge: ch,
		Phase:     ledger.ChallengePhaseOf(ch, s.query.Now()),
		Pool:      ch.Pool(),
		Meta:      s.entry(c, meta.KindChallenge, ch.ID),
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.Map{
		"status":  "ok",
		"version": s.opts.Version,
		"commit":  s.opts.Commit,
	}, "")
}

func (s *Server) config(c *fiber.Ctx) error {
	data := fiber.Map{"ledger": s.query.Config()}
	if s.meta != nil {
		data["meta_scope"] = s.meta.Scope()
	}
	return SendSuccess(c, data, "")
}

func (s *Server) getGoal(c *fiber.Ctx) error {
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid goal id", nil)
	}
	g, err := s.query.GetGoal(c.UserContext(), id)
	if err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, s.goalResponse(c, g), "")
}

func (s *Server) userGoals(c *fiber.Ctx) error {
	views, err := s.query.UserGoalViews(c.UserContext(), ledger.Address(c.Params("user")))
	if err != nil {
		return SendLedgerError(c, err)
	}
	ids := make([]uint64, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	var entries map[uint64]meta.Entry
	if s.meta != nil {
		entries = s.meta.GetMany(c.UserContext(), meta.KindGoal, ids)
	}

	out := make([]goalResponse, len(views))
	for i, v := range views {
		out[i] = goalResponse{GoalView: v}
		if e, ok := entries[v.ID]; ok {
			out[i].Meta = &e
		}
	}
	return SendSuccess(c, out, "")
}

func (s *Server) userChallenges(c *fiber.Ctx) error {
	ctx := c.UserContext()
	ids, err := s.query.GetUserChallenges(ctx, ledger.Address(c.Params("user")))
	if err != nil {
		return SendLedgerError(c, err)
	}
	out := make([]challengeResponse, 0, len(ids))
	for _, id := range ids {
		ch, err := s.query.GetChallenge(ctx, id)
		if err != nil {
			return SendLedgerError(c, err)
		}
		out = append(out, s.challengeResponse(c, ch))
	}
	return SendSuccess(c, out, "")
}

func (s *Server) userBeneficiary(c *fiber.Ctx) error {
	user := ledger.Address(c.Params("user"))
	beneficiary, isDefault, err := s.query.GetBeneficiary(c.UserContext(), user)
	if err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, fiber.Map{
		"user":        user,
		"beneficiary": beneficiary,
		"is_default":  isDefault,
	}, "")
}

func (s *Server) userPledged(c *fiber.Ctx) error {
	user := ledger.Address(c.Params("user"))
	total, err := s.query.TotalPledged(c.UserContext(), user)
	if err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, fiber.Map{"user": user, "total": total}, "")
}

func (s *Server) openChallenges(c *fiber.Ctx) error {
	open, err := s.query.OpenChallenges(c.UserContext(), ledger.Address(c.Query("user")), pageSize(c))
	if err != nil {
		return SendLedgerError(c, err)
	}
	out := make([]challengeResponse, len(open))
	for i, ch := range open {
		out[i] = s.challengeResponse(c, ch)
	}
	return SendSuccess(c, out, "")
}

func (s *Server) getChallenge(c *fiber.Ctx) error {
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid challenge id", nil)
	}
	ch, err := s.query.GetChallenge(c.UserContext(), id)
	if err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, s.challengeResponse(c, ch), "")
}

func (s *Server) challengeParticipants(c *fiber.Ctx) error {
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid challenge id", nil)
	}
	participants, err := s.query.GetChallengeParticipants(c.UserContext(), id)
	if err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, participants, "")
}

func (s *Server) events(c *fiber.Ctx) error {
	var after uint64
	if raw := c.Query("after"); raw != "" {
		var err error
		if after, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return SendBadRequest(c, "Invalid after cursor", map[string]string{"after": raw})
		}
	}
	events, err := s.query.Events(c.UserContext(), after, pageSize(c))
	if err != nil {
		return SendLedgerError(c, err)
	}
	if events == nil {
		events = []ledger.Event{}
	}
	return SendSuccess(c, events, "")
}

func (s *Server) getMeta(c *fiber.Ctx) error {
	kind, err := meta.ParseKind(c.Params("kind"))
	if err != nil {
		return SendBadRequest(c, err.Error(), nil)
	}
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid record id", nil)
	}
	e := s.entry(c, kind, id)
	if e == nil {
		return SendNotFound(c, "No metadata for this record")
	}
	return SendSuccess(c, e, "")
}

func (s *Server) createGoal(c *fiber.Ctx) error {
	var req createGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "Invalid request body", nil)
	}
	ctx := c.UserContext()
	id, err := s.processor.CreateGoal(ctx, Caller(c), req.Amount, req.Deadline, req.Description)
	if err != nil {
		return SendLedgerError(c, err)
	}
	s.saveTitle(c, meta.KindGoal, id, req.Title)

	g, err := s.query.GetGoal(ctx, id)
	if err != nil {
		return SendLedgerError(c, err)
	}
	return SendCreated(c, s.goalResponse(c, g), "Goal created")
}

func (s *Server) completeGoal(c *fiber.Ctx) error {
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid goal id", nil)
	}
	if err := s.processor.MarkGoalComplete(c.UserContext(), id, Caller(c)); err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, fiber.Map{"id": id}, "Goal completed")
}

func (s *Server) claimGoal(c *fiber.Ctx) error {
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid goal id", nil)
	}
	var req claimRequest
	if err := parseBody(c, &req); err != nil {
		return SendBadRequest(c, "Invalid request body", nil)
	}
	transfer, err := s.processor.ClaimGoal(c.UserContext(), id, Caller(c), ledger.Address(strings.TrimSpace(req.To)))
	if err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, transfer, "Stake claimed")
}

func (s *Server) forfeitGoal(c *fiber.Ctx) error {
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid goal id", nil)
	}
	transfer, err := s.processor.ForfeitGoal(c.UserContext(), id, Caller(c))
	if err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, transfer, "Stake forfeited")
}

func (s *Server) setBeneficiary(c *fiber.Ctx) error {
	var req beneficiaryRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "Invalid request body", nil)
	}
	beneficiary := ledger.Address(strings.TrimSpace(req.Beneficiary))
	if err := s.processor.SetBeneficiary(c.UserContext(), Caller(c), beneficiary); err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, fiber.Map{"beneficiary": beneficiary}, "Beneficiary set")
}

func (s *Server) clearBeneficiary(c *fiber.Ctx) error {
	if err := s.processor.ClearBeneficiary(c.UserContext(), Caller(c)); err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, nil, "Beneficiary cleared")
}

func (s *Server) createChallenge(c *fiber.Ctx) error {
	var req createChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "Invalid request body", nil)
	}
	ctx := c.UserContext()
	id, err := s.processor.CreateChallenge(ctx, Caller(c), req.Description, req.EntryFee, req.StartTime, req.Deadline, req.Goal)
	if err != nil {
		return SendLedgerError(c, err)
	}
	s.saveTitle(c, meta.KindChallenge, id, req.Title)

	ch, err := s.query.GetChallenge(ctx, id)
	if err != nil {
		return SendLedgerError(c, err)
	}
	return SendCreated(c, s.challengeResponse(c, ch), "Challenge created")
}

func (s *Server) joinChallenge(c *fiber.Ctx) error {
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid challenge id", nil)
	}
	if err := s.processor.JoinChallenge(c.UserContext(), id, Caller(c)); err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, fiber.Map{"id": id}, "Joined challenge")
}

func (s *Server) completeChallenge(c *fiber.Ctx) error {
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid challenge id", nil)
	}
	if err := s.processor.MarkChallengeComplete(c.UserContext(), id, Caller(c)); err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, fiber.Map{"id": id}, "Challenge goal completed")
}

func (s *Server) resolveChallenge(c *fiber.Ctx) error {
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid challenge id", nil)
	}
	payout, err := s.processor.ResolveChallenge(c.UserContext(), id, Caller(c))
	if err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, payout, "Challenge resolved")
}

func (s *Server) claimWinnings(c *fiber.Ctx) error {
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid challenge id", nil)
	}
	transfer, err := s.processor.ClaimChallengeWinnings(c.UserContext(), id, Caller(c))
	if err != nil {
		return SendLedgerError(c, err)
	}
	return SendSuccess(c, transfer, "Winnings claimed")
}

// putMeta lets the goal owner or challenge creator edit the display metadata.
func (s *Server) putMeta(c *fiber.Ctx) error {
	kind, err := meta.ParseKind(c.Params("kind"))
	if err != nil {
		return SendBadRequest(c, err.Error(), nil)
	}
	id, ok := recordID(c)
	if !ok {
		return SendBadRequest(c, "Invalid record id", nil)
	}
	if s.meta == nil {
		return SendError(c, fiber.StatusServiceUnavailable, "META_DISABLED", "Record metadata is not enabled", nil)
	}

	var req metaRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "Invalid request body", nil)
	}
	req.Title, req.Notes = strings.TrimSpace(req.Title), strings.TrimSpace(req.Notes)
	details := map[string]string{}
	if utf8.RuneCountInString(req.Title) > maxTitleLength {
		details["title"] = "must be at most " + strconv.Itoa(maxTitleLength) + " characters"
	}
	if utf8.RuneCountInString(req.Notes) > maxNotesLength {
		details["notes"] = "must be at most " + strconv.Itoa(maxNotesLength) + " characters"
	}
	if req.Title == "" && req.Notes == "" {
		details["title"] = "title or notes is required"
	}
	if len(details) > 0 {
		return SendBadRequest(c, "Invalid metadata", details)
	}

	ctx := c.UserContext()
	var owner ledger.Address
	switch kind {
	case meta.KindGoal:
		g, err := s.query.GetGoal(ctx, id)
		if err != nil {
			return SendLedgerError(c, err)
		}
		owner = g.Owner
	case meta.KindChallenge:
		ch, err := s.query.GetChallenge(ctx, id)
		if err != nil {
			return SendLedgerError(c, err)
		}
		owner = ch.Creator
	}
	if owner != Caller(c) {
		return SendForbidden(c, "Only the owner can edit this record")
	}

	e, err := s.meta.Upsert(ctx, kind, id, meta.Entry{Title: req.Title, Notes: req.Notes})
	if err != nil {
		return err
	}
	return SendSuccess(c, e, "Metadata saved")
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func (s *Server) saveTitle(c *fiber.Ctx, kind meta.Kind, id uint64, title string) {
	title = strings.TrimSpace(title)
	if s.meta == nil || title == "" {
		return
	}
	title = truncateRunes(title, maxTitleLength)
	// Metadata is cosmetic: the record exists even if this write fails.
	if _, err := s.meta.Upsert(c.UserContext(), kind, id, meta.Entry{Title: title}); err != nil {
		slog.Warn("Failed to save record title",
			slog.String("type", "api"),
			slog.String("kind", string(kind)),
			slog.Uint64("id", id),
			slog.Any("error", err),
		)
	}
}
