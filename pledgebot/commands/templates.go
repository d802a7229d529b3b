package commands

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// GoalTemplate is a suggested goal description, grouped by category.
type GoalTemplate struct {
	Category string
	Icon     string
	Text     string
}

// templates implements fuzzy.Source over the goal suggestions.
type templates []GoalTemplate

func (t templates) Len() int {
	return len(t)
}

func (t templates) String(i int) string {
	return strings.ToLower(t[i].Category + " " + t[i].Text)
}

var goalTemplates = templates{
	{Category: "Fitness Goals", Icon: "🏃", Text: "Run a 5K / Half Marathon"},
	{Category: "Fitness Goals", Icon: "🏃", Text: "Walk 10,000 steps daily"},
	{Category: "Fitness Goals", Icon: "🏃", Text: "Exercise 3–5 times per week"},
	{Category: "Fitness Goals", Icon: "🏃", Text: "Go to the gym X times per week"},
	{Category: "Health & Weight Goals", Icon: "⚖️", Text: "Lose 5–10 pounds in a month"},
	{Category: "Health & Weight Goals", Icon: "⚖️", Text: "Limit alcohol or caffeine intake"},
	{Category: "Health & Weight Goals", Icon: "⚖️", Text: "Sleep 7–8 hours nightly"},
	{Category: "Health & Weight Goals", Icon: "⚖️", Text: "Reduce screen time before bed"},
	{Category: "Financial & Habit Goals", Icon: "💰", Text: "Save $500–$1000/month"},
	{Category: "Financial & Habit Goals", Icon: "💰", Text: "Pay off credit card debt"},
	{Category: "Financial & Habit Goals", Icon: "💰", Text: "Invest consistently (e.g., weekly or monthly)"},
	{Category: "Financial & Habit Goals", Icon: "💰", Text: "Avoid impulse purchases / eating out"},
	{Category: "Productivity & Lifestyle Goals", Icon: "⏰", Text: "Wake up before 6 or 7 a.m."},
	{Category: "Productivity & Lifestyle Goals", Icon: "⏰", Text: "Spend less time on social media"},
	{Category: "Productivity & Lifestyle Goals", Icon: "⏰", Text: "Complete a side project or content goal (e.g., post weekly, start a YouTube channel)"},
}

// SearchTemplates returns the templates matching query best first. An empty query returns
// the first limit templates in catalogue order.
func SearchTemplates(query string, limit int) []GoalTemplate {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		n := min(limit, len(goalTemplates))
		out := make([]GoalTemplate, n)
		copy(out, goalTemplates[:n])
		return out
	}

	matches := fuzzy.FindFrom(query, goalTemplates)
	out := make([]GoalTemplate, 0, min(limit, len(matches)))
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, goalTemplates[m.Index])
	}
	return out
}

// TemplateCategories lists the categories in catalogue order.
func TemplateCategories() []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range goalTemplates {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	return out
}
