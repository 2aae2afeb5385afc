package search

import (
	"strconv"

	"torrentstream/catalog/internal/domain"
)

// Scope tells the visibility rules what is being browsed. A zero UploaderID
// is the general scope; otherwise the request lists one uploader's profile.
type Scope struct {
	UploaderID domain.UserID
	RSS        bool
}

func (s Scope) Profile() bool {
	return s.UploaderID != 0
}

// Visibility is the resolved filter for one (viewer, scope) pair. Rows must
// satisfy Predicate; when HiddenOwner is set, hidden rows are admitted only
// if that user uploaded them.
type Visibility struct {
	Predicate   domain.FlagPredicate
	HiddenOwner domain.UserID
}

func (v Visibility) Unrestricted() bool {
	return v.Predicate.IsZero() && v.HiddenOwner == 0
}

func (v Visibility) Matches(t domain.Torrent) bool {
	if !v.Predicate.Matches(t.Flags) {
		return false
	}
	if v.HiddenOwner != 0 && t.Flags.Hidden && t.UploaderID != v.HiddenOwner {
		return false
	}
	return true
}

// Key is the deterministic signature fragment for this filter.
func (v Visibility) Key() string {
	return v.Predicate.Key() + ";own=" + strconv.FormatInt(int64(v.HiddenOwner), 10)
}

var removedFlags = []domain.Flag{domain.FlagDeleted, domain.FlagBanned}

// VisibilityFilter resolves which torrents viewer may see in scope. RSS feeds
// are evaluated as if the viewer were anonymous: a feed reader cannot carry a
// session, so the output must not depend on one.
func VisibilityFilter(viewer domain.Viewer, scope Scope) Visibility {
	if scope.RSS {
		viewer = domain.Anonymous()
	}
	if viewer.Privileged() {
		return Visibility{}
	}

	forbid := append([]domain.Flag(nil), removedFlags...)

	if scope.Profile() {
		if viewer.Owns(scope.UploaderID) {
			return Visibility{Predicate: domain.FlagPredicate{Forbid: forbid}}
		}
		forbid = append(forbid, domain.FlagHidden, domain.FlagAnonymous)
		return Visibility{Predicate: domain.FlagPredicate{}.Merge(domain.FlagPredicate{Forbid: forbid})}
	}

	if viewer.IsAnonymous() {
		forbid = append(forbid, domain.FlagHidden)
		return Visibility{Predicate: domain.FlagPredicate{}.Merge(domain.FlagPredicate{Forbid: forbid})}
	}
	return Visibility{
		Predicate:   domain.FlagPredicate{Forbid: forbid},
		HiddenOwner: viewer.ID,
	}
}

// IsVisible evaluates the same rules as VisibilityFilter against one record.
func IsVisible(t domain.Torrent, viewer domain.Viewer, scope Scope) bool {
	if scope.Profile() && t.UploaderID != scope.UploaderID {
		return false
	}
	return VisibilityFilter(viewer, scope).Matches(t)
}

// maskUploader hides the uploader of anonymous uploads from everyone but the
// uploader and privileged viewers.
func maskUploader(view *domain.TorrentView, viewer domain.Viewer) {
	if !view.Flags.Anonymous {
		return
	}
	if viewer.Privileged() || viewer.Owns(view.UploaderID) {
		return
	}
	view.UploaderID = 0
}
