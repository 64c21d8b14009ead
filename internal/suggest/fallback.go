package suggest

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/contexttype/contexttype/internal/redact"
)

// Fallback tries primary and answers from secondary when primary fails or
// comes back empty. Identical concurrent requests share one upstream call.
type Fallback struct {
	primary   Provider
	secondary Provider
	group     singleflight.Group
}

type result struct {
	suggestions []Suggestion
	source      string
}

// NewFallback chains providers. A nil primary means secondary only; a nil
// secondary defaults to Static.
func NewFallback(primary, secondary Provider) *Fallback {
	if secondary == nil {
		secondary = NewStatic()
	}
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) Name() string {
	if f.primary == nil {
		return f.secondary.Name()
	}
	return f.primary.Name() + "+" + f.secondary.Name()
}

func (f *Fallback) Suggest(ctx context.Context, req Request) ([]Suggestion, error) {
	out, _, err := f.SuggestWithSource(ctx, req)
	return out, err
}

// SuggestWithSource also reports which provider answered.
func (f *Fallback) SuggestWithSource(ctx context.Context, req Request) ([]Suggestion, string, error) {
	if err := checkRequest(req); err != nil {
		return nil, "", err
	}

	key := string(req.Context) + "\x00" + strconv.Itoa(req.Count()) + "\x00" + req.Text
	v, err, _ := f.group.Do(key, func() (any, error) {
		return f.suggest(ctx, req)
	})
	if err != nil {
		return nil, "", err
	}
	res := v.(result)
	return append([]Suggestion(nil), res.suggestions...), res.source, nil
}

func (f *Fallback) suggest(ctx context.Context, req Request) (result, error) {
	if f.primary != nil {
		out, err := f.primary.Suggest(ctx, req)
		switch {
		case err == nil && len(out) > 0:
			return result{suggestions: out, source: f.primary.Name()}, nil
		case errors.Is(err, ErrUnknownContext):
			return result{}, err
		case err != nil:
			redact.Logf("suggestions: %s failed, using %s: %v", f.primary.Name(), f.secondary.Name(), err)
		default:
			redact.Debugf("suggestions: %s returned nothing, using %s", f.primary.Name(), f.secondary.Name())
		}
	}

	out, err := f.secondary.Suggest(ctx, req)
	if err != nil {
		return result{}, err
	}
	if len(out) == 0 {
		return result{}, ErrNoSuggestions
	}
	return result{suggestions: out, source: f.secondary.Name()}, nil
}
