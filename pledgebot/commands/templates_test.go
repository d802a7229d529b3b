package commands

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
)

func TestSearchTemplates(t *testing.T) {
	got := SearchTemplates("marathon", 5)
	require.NotEmpty(t, got)
	assert.Equal(t, "Run a 5K / Half Marathon", got[0].Text)

	got = SearchTemplates("SLEEP", 5)
	require.NotEmpty(t, got)
	assert.Equal(t, "Sleep 7–8 hours nightly", got[0].Text)

	assert.Empty(t, SearchTemplates("zzzzqqq", 5))
}

func TestSearchTemplates_EmptyQueryAndLimit(t *testing.T) {
	got := SearchTemplates("", 3)
	require.Len(t, got, 3)
	assert.Equal(t, "Run a 5K / Half Marathon", got[0].Text)

	assert.Len(t, SearchTemplates("", 100), len(goalTemplates))
	assert.LessOrEqual(t, len(SearchTemplates("e", 2)), 2)
}

func TestTemplateCategories(t *testing.T) {
	assert.Equal(t, []string{
		"Fitness Goals",
		"Health & Weight Goals",
		"Financial & Habit Goals",
		"Productivity & Lifestyle Goals",
	}, TemplateCategories())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		wantType ErrorType
		wantMsg  string
	}{
		{err: fmt.Errorf("%w: goal 3", ledger.ErrNotFound), wantType: NotFoundError, wantMsg: "Goal 3"},
		{err: fmt.Errorf("%w: only the owner can complete goal 3", ledger.ErrUnauthorized), wantType: PermissionError, wantMsg: "Only the owner can complete goal 3"},
		{err: fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidInput), wantType: UserError, wantMsg: "Amount must be positive"},
		{err: fmt.Errorf("%w: challenge 2 already started", ledger.ErrInvalidTransition), wantType: BusinessLogicError, wantMsg: "Challenge 2 already started"},
		{err: errors.New("dial tcp: connection refused"), wantType: SystemError, wantMsg: errSystem},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			typ, msg := classify(tt.err)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}
