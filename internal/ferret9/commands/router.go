// Package commands routes the handful of plain-text commands users can send
// by mentioning the bot ("help", "reset", "scan tables", "report @user date",
// "whosworking"). Anything that matches no route falls through to the chat
// service.
package commands

import (
	"context"
	"errors"
	"strings"
)

// Command is a mention with the bot mention already stripped.
type Command struct {
	Name      string   // name of the route that matched
	Args      []string // whitespace-separated words of RawText
	RawText   string
	ChannelID string
	GuildID   string
	UserID    string
	Username  string
}

// ErrNoRoute is returned by Route when no predicate matches. Callers should
// use errors.Is and hand the message to the chat service.
var ErrNoRoute = errors.New("commands: no route matched")

// Handler answers a command with text to send back.
type Handler func(ctx context.Context, cmd *Command) (string, error)

// Matcher decides whether a route applies to the stripped mention text.
type Matcher func(text string) bool

type route struct {
	name    string
	match   Matcher
	handler Handler
}

// Router tries routes in registration order; the first match wins.
type Router struct {
	routes []route
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Register appends a route. Order matters: earlier routes shadow later ones.
func (r *Router) Register(name string, match Matcher, handler Handler) {
	r.routes = append(r.routes, route{name: name, match: match, handler: handler})
}

// Names lists registered routes in evaluation order.
func (r *Router) Names() []string {
	names := make([]string, len(r.routes))
	for i, rt := range r.routes {
		names[i] = rt.name
	}
	return names
}

// Match returns the name of the first route matching text, or "".
func (r *Router) Match(text string) string {
	for _, rt := range r.routes {
		if rt.match(text) {
			return rt.name
		}
	}
	return ""
}

// Route runs the first matching handler for cmd.RawText.
func (r *Router) Route(ctx context.Context, cmd *Command) (string, error) {
	for _, rt := range r.routes {
		if !rt.match(cmd.RawText) {
			continue
		}
		cmd.Name = rt.name
		cmd.Args = strings.Fields(cmd.RawText)
		return rt.handler(ctx, cmd)
	}
	return "", ErrNoRoute
}

// Exact matches text equal to one of phrases, ignoring case, surrounding
// whitespace and trailing punctuation.
func Exact(phrases ...string) Matcher {
	want := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		want[normalize(p)] = struct{}{}
	}
	return func(text string) bool {
		_, ok := want[normalize(text)]
		return ok
	}
}

// Prefix matches text whose first word is word or "/"+word.
func Prefix(word string) Matcher {
	word = strings.ToLower(word)
	return func(text string) bool {
		fields := strings.Fields(strings.ToLower(text))
		if len(fields) == 0 {
			return false
		}
		first := strings.TrimPrefix(fields[0], "/")
		return first == word
	}
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, "?!. ")
	return strings.Join(strings.Fields(s), " ")
}
