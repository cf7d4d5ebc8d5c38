// Package effects turns resolution results into side-effect plans on the
// photo library and applies them.
package effects

import (
	"fmt"

	"go-best-shot/internal/resolver"
)

// Mode selects what happens to winners and alternates
type Mode string

const (
	ModeFavorite Mode = "favorite"
	ModeHide     Mode = "hide"
	ModeDelete   Mode = "delete"
	ModeAlbums   Mode = "albums"
	ModeNone     Mode = "none"
)

// ActionKind is one kind of library mutation
type ActionKind string

const (
	ActionFavorite   ActionKind = "favorite"
	ActionUnfavorite ActionKind = "unfavorite"
	ActionArchive    ActionKind = "archive"
	ActionDelete     ActionKind = "delete"
	ActionAddToAlbum ActionKind = "add_to_album"
)

// Action applies one mutation to a set of assets
type Action struct {
	Kind     ActionKind `json:"kind"`
	AssetIDs []string   `json:"asset_ids"`
	Album    string     `json:"album,omitempty"`
}

// Policy carries the settings strategies consult
type Policy struct {
	// SkipDegraded suppresses destructive plans for groups where every
	// member scored 0
	SkipDegraded bool

	// ProtectFailed keeps assets that could not be scored out of
	// destructive actions
	ProtectFailed bool

	WinnerAlbum     string
	AlternatesAlbum string
}

// Strategy plans the actions of one mode
type Strategy interface {
	Plan(result resolver.ResolutionResult, policy Policy) []Action
	Mode() Mode

	// Destructive reports whether the mode removes alternates from view
	Destructive() bool
}

// NewStrategy returns the strategy for mode
func NewStrategy(mode Mode) (Strategy, error) {
	switch mode {
	case ModeFavorite:
		return favoriteStrategy{}, nil
	case ModeHide:
		return hideStrategy{}, nil
	case ModeDelete:
		return deleteStrategy{}, nil
	case ModeAlbums:
		return albumStrategy{}, nil
	case ModeNone:
		return noneStrategy{}, nil
	default:
		return nil, fmt.Errorf("unsupported effects mode: %s", mode)
	}
}

// favoriteStrategy favorites the winner and unfavorites the alternates
type favoriteStrategy struct{}

func (favoriteStrategy) Plan(result resolver.ResolutionResult, _ Policy) []Action {
	actions := []Action{{Kind: ActionFavorite, AssetIDs: []string{result.Winner}}}
	if len(result.Alternates) > 0 {
		actions = append(actions, Action{Kind: ActionUnfavorite, AssetIDs: copyIDs(result.Alternates)})
	}
	return actions
}

func (favoriteStrategy) Mode() Mode        { return ModeFavorite }
func (favoriteStrategy) Destructive() bool { return false }

// hideStrategy archives the alternates
type hideStrategy struct{}

func (hideStrategy) Plan(result resolver.ResolutionResult, policy Policy) []Action {
	ids := destructiveTargets(result, policy)
	if len(ids) == 0 {
		return nil
	}
	return []Action{{Kind: ActionArchive, AssetIDs: ids}}
}

func (hideStrategy) Mode() Mode        { return ModeHide }
func (hideStrategy) Destructive() bool { return true }

// deleteStrategy trashes the alternates
type deleteStrategy struct{}

func (deleteStrategy) Plan(result resolver.ResolutionResult, policy Policy) []Action {
	ids := destructiveTargets(result, policy)
	if len(ids) == 0 {
		return nil
	}
	return []Action{{Kind: ActionDelete, AssetIDs: ids}}
}

func (deleteStrategy) Mode() Mode        { return ModeDelete }
func (deleteStrategy) Destructive() bool { return true }

// albumStrategy sorts winners and alternates into two albums
type albumStrategy struct{}

func (albumStrategy) Plan(result resolver.ResolutionResult, policy Policy) []Action {
	actions := []Action{{Kind: ActionAddToAlbum, AssetIDs: []string{result.Winner}, Album: policy.WinnerAlbum}}
	if len(result.Alternates) > 0 {
		actions = append(actions, Action{Kind: ActionAddToAlbum, AssetIDs: copyIDs(result.Alternates), Album: policy.AlternatesAlbum})
	}
	return actions
}

func (albumStrategy) Mode() Mode        { return ModeAlbums }
func (albumStrategy) Destructive() bool { return false }

type noneStrategy struct{}

func (noneStrategy) Plan(resolver.ResolutionResult, Policy) []Action { return nil }
func (noneStrategy) Mode() Mode                                      { return ModeNone }
func (noneStrategy) Destructive() bool                               { return false }

// destructiveTargets returns the alternates a destructive mode may touch
func destructiveTargets(result resolver.ResolutionResult, policy Policy) []string {
	if !policy.ProtectFailed {
		return copyIDs(result.Alternates)
	}
	failed := make(map[string]struct{})
	for _, s := range result.Scores {
		if s.Failed() {
			failed[s.AssetID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(result.Alternates))
	for _, id := range result.Alternates {
		if _, ok := failed[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func copyIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
