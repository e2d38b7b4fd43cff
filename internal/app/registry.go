package app

import (
	"fmt"
	"strings"

	"commentary/api/internal/config"
	"commentary/api/internal/rbac"
	"commentary/api/internal/thread"
)

// BuildRegistry registers the configured commontable and commentator types.
// Every commontable type starts from the env defaults; entries in the
// commontable config file then override single fields per type, and may
// introduce types not listed in COMMONTABLE_TYPES.
func BuildRegistry(cfg config.Config) (*thread.Registry, error) {
	order, err := parseOrder(cfg.CommentOrder)
	if err != nil {
		return nil, err
	}
	mode, err := parseSubscription(cfg.ThreadSubscription)
	if err != nil {
		return nil, err
	}
	if cfg.CommentsPerPage < 0 {
		return nil, fmt.Errorf("comments per page must not be negative, got %d", cfg.CommentsPerPage)
	}

	defaults := thread.Config{
		CommentFilter:      thread.NotDeleted,
		CommentOrder:       order,
		CommentsPerPage:    cfg.CommentsPerPage,
		ThreadRead:         thread.AllowAll,
		ThreadModerator:    thread.RoleCan(rbac.ActionModerate),
		ThreadSubscription: mode,
	}
	registry := thread.NewRegistry(defaults)

	types := make(map[string]thread.Config)
	var ordered []string
	for _, typ := range cfg.CommontableTypes {
		if _, seen := types[typ]; !seen {
			ordered = append(ordered, typ)
		}
		types[typ] = defaults
	}

	overrides, err := config.LoadCommontables(cfg.CommontableConfigFile)
	if err != nil {
		return nil, err
	}
	for _, item := range overrides {
		typ := strings.TrimSpace(item.Type)
		base, seen := types[typ]
		if !seen {
			base = defaults
			ordered = append(ordered, typ)
		}
		merged, err := applyOverride(base, item)
		if err != nil {
			return nil, fmt.Errorf("commontable %s: %w", typ, err)
		}
		types[typ] = merged
	}

	for _, typ := range ordered {
		registry.RegisterCommontable(typ, types[typ])
	}
	for _, typ := range cfg.CommentatorTypes {
		registry.RegisterCommentator(typ)
	}
	return registry, nil
}

func applyOverride(base thread.Config, item config.CommontableConfig) (thread.Config, error) {
	if item.CommentOrder != "" {
		order, err := parseOrder(item.CommentOrder)
		if err != nil {
			return base, err
		}
		base.CommentOrder = order
	}
	if item.CommentsPerPage != nil {
		if *item.CommentsPerPage < 0 {
			return base, fmt.Errorf("comments per page must not be negative, got %d", *item.CommentsPerPage)
		}
		base.CommentsPerPage = *item.CommentsPerPage
	}
	if item.Read != "" {
		p, err := thread.ParsePredicate(item.Read)
		if err != nil {
			return base, fmt.Errorf("read: %w", err)
		}
		base.ThreadRead = p
	}
	if item.Moderator != "" {
		p, err := thread.ParsePredicate(item.Moderator)
		if err != nil {
			return base, fmt.Errorf("moderator: %w", err)
		}
		base.ThreadModerator = p
	}
	if item.Subscription != "" {
		mode, err := parseSubscription(item.Subscription)
		if err != nil {
			return base, err
		}
		base.ThreadSubscription = mode
	}
	if item.ShowDeleted {
		base.CommentFilter = nil
	}
	return base, nil
}

func parseOrder(value string) (thread.Order, error) {
	switch order := thread.Order(strings.TrimSpace(value)); order {
	case thread.OrderLatest, thread.OrderEarliest, thread.OrderVotesEarliest, thread.OrderVotesLatest:
		return order, nil
	}
	return "", fmt.Errorf("unknown comment order %q", value)
}

func parseSubscription(value string) (thread.SubscriptionMode, error) {
	switch mode := thread.SubscriptionMode(strings.TrimSpace(value)); mode {
	case thread.SubscriptionDisabled, thread.SubscriptionModeratorsOnly, thread.SubscriptionBoth:
		return mode, nil
	}
	return "", fmt.Errorf("unknown thread subscription mode %q", value)
}
