package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"go2tv.app/uniremote/internal/domain"
)

// LaunchFavorite launches the favorite that best matches query: an exact
// app id, then an exact label, then the closest fuzzy label match.
func (d *Dispatcher) LaunchFavorite(ctx context.Context, settings domain.Settings, query string) (*domain.Outcome, error) {
	fav, ok := ResolveFavorite(settings.Favorites, query)
	if !ok {
		return nil, &domain.RemoteError{
			Kind:    domain.KindPrecondition,
			Code:    "FAVORITE_NOT_FOUND",
			Message: fmt.Sprintf("No favorite matches %q", strings.TrimSpace(query)),
			SuggestedFixes: []string{
				"Add the channel or input to favorites in Settings.",
			},
			Details: map[string]any{"favorites": len(settings.Favorites)},
		}
	}
	return d.Launch(ctx, settings, domain.LaunchRequest{AppID: fav.AppID, Label: fav.Label})
}

// ResolveFavorite finds the favorite query refers to.
func ResolveFavorite(favorites []domain.Favorite, query string) (domain.Favorite, bool) {
	q := strings.TrimSpace(query)
	if q == "" || len(favorites) == 0 {
		return domain.Favorite{}, false
	}
	for _, fav := range favorites {
		if fav.AppID == q {
			return fav, true
		}
	}
	for _, fav := range favorites {
		if strings.EqualFold(strings.TrimSpace(fav.Label), q) {
			return fav, true
		}
	}

	labels := make([]string, len(favorites))
	for i, fav := range favorites {
		labels[i] = fav.Label
	}
	matches := fuzzy.Find(q, labels)
	if len(matches) == 0 {
		return domain.Favorite{}, false
	}
	return favorites[matches[0].Index], true
}
