package services

import (
	"testing"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/logging"
	"github.com/stretchr/testify/assert"
)

func newTestRenderer() TemplateRenderer {
	return NewTemplateRenderer(logging.Discard(), time.UTC)
}

func TestTemplateRenderer_Render(t *testing.T) {
	interviewAt := time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)
	vars := map[string]any{
		"candidate": map[string]any{
			"name":  "Ada Lovelace",
			"email": "ada@example.com",
		},
		"interview.date": "2026-03-14T15:30:00Z",
		"interview": map[string]any{
			"at":   interviewAt,
			"link": "",
		},
		"company": map[string]string{"name": "Acme"},
		"stage":   "offer",
		"remote":  true,
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "plain text", body: "Hello there", want: "Hello there"},
		{name: "nested path", body: "Hi {{candidate.name}}", want: "Hi Ada Lovelace"},
		{name: "whitespace inside braces", body: "Hi {{ candidate.name }}", want: "Hi Ada Lovelace"},
		{name: "string-keyed nested map", body: "Welcome to {{company.name}}", want: "Welcome to Acme"},
		{name: "flat dotted key wins", body: "{{interview.date}}", want: "2026-03-14T15:30:00Z"},
		{name: "unknown placeholder kept verbatim", body: "Hi {{candidate.nickname}} from {{ team }}", want: "Hi {{candidate.nickname}} from {{ team }}"},
		{name: "format date", body: "{{formatDate interview.at}}", want: "Saturday, March 14, 2026"},
		{name: "format date with layout", body: `{{formatDate interview.date "2006-01-02"}}`, want: "2026-03-14"},
		{name: "format time", body: "{{formatTime interview.at}}", want: "3:30 PM"},
		{name: "uppercase", body: "{{uppercase stage}}", want: "OFFER"},
		{name: "lowercase", body: "{{lowercase candidate.name}}", want: "ada lovelace"},
		{name: "titlecase", body: "{{titlecase stage}}", want: "Offer"},
		{name: "default on missing", body: `{{default candidate.nickname "friend"}}`, want: "friend"},
		{name: "default on empty", body: `{{default interview.link "TBD"}}`, want: "TBD"},
		{name: "default on present", body: `{{default candidate.name "friend"}}`, want: "Ada Lovelace"},
		{name: "helper on missing keeps token", body: "{{uppercase nothing.here}}", want: "{{uppercase nothing.here}}"},
		{name: "unknown helper keeps token", body: "{{shout stage}}", want: "{{shout stage}}"},
		{name: "if true", body: "{{#if remote}}Join online{{else}}Come in{{/if}}", want: "Join online"},
		{name: "if missing", body: "{{#if missing}}yes{{else}}no{{/if}}", want: "no"},
		{name: "if empty string", body: "{{#if interview.link}}Link: {{interview.link}}{{/if}}done", want: "done"},
		{name: "unless", body: "{{#unless interview.link}}Link to follow{{/unless}}", want: "Link to follow"},
		{name: "nested blocks", body: "{{#if remote}}{{#if candidate.name}}Hi {{candidate.name}}{{/if}}{{/if}}", want: "Hi Ada Lovelace"},
	}

	r := newTestRenderer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Render(tt.body, vars)
			assert.False(t, res.HadError, res.Error)
			assert.Equal(t, tt.want, res.Text)
		})
	}
}

func TestTemplateRenderer_MalformedReturnsOriginal(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unclosed tag", body: "Hi {{candidate.name"},
		{name: "unclosed block", body: "{{#if remote}}Hi"},
		{name: "stray close", body: "Hi{{/if}}"},
		{name: "mismatched close", body: "{{#if a}}x{{/unless}}"},
		{name: "unknown block", body: "{{#each items}}x{{/each}}"},
		{name: "double else", body: "{{#if a}}x{{else}}y{{else}}z{{/if}}"},
		{name: "unterminated literal", body: `{{default name "oops}}`},
	}

	r := newTestRenderer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Render(tt.body, map[string]any{"candidate": map[string]any{"name": "Ada"}})
			assert.True(t, res.HadError)
			assert.NotEmpty(t, res.Error)
			assert.Equal(t, tt.body, res.Text)
		})
	}
}

func TestTemplateRenderer_NilContext(t *testing.T) {
	res := newTestRenderer().Render("Hi {{candidate.name}}", nil)
	assert.False(t, res.HadError)
	assert.Equal(t, "Hi {{candidate.name}}", res.Text)
}

func TestTemplateRenderer_ExtractVariables(t *testing.T) {
	body := `Hi {{candidate.name}}, {{ company.name }} invites you.
{{#if interview.link}}Join: {{interview.link}}{{else}}Address: {{interview.location}}{{/if}}
{{formatDate interview.date}} {{candidate.name}} {{default x "y"}}`

	vars := newTestRenderer().ExtractVariables(body)
	assert.Equal(t, []string{"candidate.name", "company.name", "interview.link", "interview.location"}, vars)
}

func TestLookupPath(t *testing.T) {
	vars := map[string]any{
		"a":     map[string]any{"b": map[string]any{"c": 3}},
		"a.b.c": 4,
		"x":     "leaf",
	}
	v, ok := LookupPath(vars, "a.b.c")
	assert.True(t, ok)
	assert.Equal(t, 4, v)

	v, ok = LookupPath(vars, "a.b")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"c": 3}, v)

	_, ok = LookupPath(vars, "x.y")
	assert.False(t, ok)
}
