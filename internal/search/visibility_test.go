package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"torrentstream/catalog/internal/domain"
)

var (
	anonymous = domain.Anonymous()
	owner     = domain.Viewer{ID: 7}
	stranger  = domain.Viewer{ID: 8, IsTrusted: true}
	moderator = domain.Viewer{ID: 9, IsModerator: true}
	admin     = domain.Viewer{ID: 10, IsAdmin: true}
)

func allFlagCombinations() []domain.Flags {
	out := make([]domain.Flags, 0, 256)
	for bits := int64(0); bits < 256; bits++ {
		out = append(out, domain.FlagsFromBitmask(bits))
	}
	return out
}

func allScopes() []Scope {
	return []Scope{
		{},
		{RSS: true},
		{UploaderID: 7},
		{UploaderID: 7, RSS: true},
	}
}

func TestDeletedAndBannedNeverVisibleToOrdinaryViewers(t *testing.T) {
	for _, viewer := range []domain.Viewer{anonymous, owner, stranger} {
		for _, scope := range allScopes() {
			for _, flags := range allFlagCombinations() {
				if !flags.Deleted && !flags.Banned {
					continue
				}
				torrent := domain.Torrent{ID: 1, UploaderID: 7, Flags: flags}
				assert.False(t, IsVisible(torrent, viewer, scope), "viewer=%+v scope=%+v flags=%+v", viewer, scope, flags)
			}
		}
	}
}

func TestPrivilegedViewersSeeEverythingOutsideRSS(t *testing.T) {
	for _, viewer := range []domain.Viewer{moderator, admin} {
		for _, scope := range []Scope{{}, {UploaderID: 7}} {
			for _, flags := range allFlagCombinations() {
				torrent := domain.Torrent{ID: 1, UploaderID: 7, Flags: flags}
				assert.True(t, IsVisible(torrent, viewer, scope), "viewer=%+v scope=%+v flags=%+v", viewer, scope, flags)
			}
		}
	}
}

func TestRSSIgnoresViewerIdentity(t *testing.T) {
	for _, scope := range []Scope{{RSS: true}, {UploaderID: 7, RSS: true}} {
		want := VisibilityFilter(anonymous, scope)
		for _, viewer := range []domain.Viewer{owner, stranger, moderator, admin} {
			assert.Equal(t, want, VisibilityFilter(viewer, scope), "viewer=%+v scope=%+v", viewer, scope)
		}
	}
}

func TestVisibilityRules(t *testing.T) {
	hidden := domain.Torrent{ID: 1, UploaderID: 7, Flags: domain.Flags{Hidden: true}}
	anonUpload := domain.Torrent{ID: 2, UploaderID: 7, Flags: domain.Flags{Anonymous: true}}
	plain := domain.Torrent{ID: 3, UploaderID: 7}
	othersHidden := domain.Torrent{ID: 4, UploaderID: 8, Flags: domain.Flags{Hidden: true}}

	tests := []struct {
		name    string
		torrent domain.Torrent
		viewer  domain.Viewer
		scope   Scope
		want    bool
	}{
		{"anonymous general hidden", hidden, anonymous, Scope{}, false},
		{"anonymous general plain", plain, anonymous, Scope{}, true},
		{"anonymous general anonymous upload", anonUpload, anonymous, Scope{}, true},
		{"owner general own hidden", hidden, owner, Scope{}, true},
		{"owner general foreign hidden", othersHidden, owner, Scope{}, false},
		{"owner general rss own hidden", hidden, owner, Scope{RSS: true}, false},
		{"stranger general hidden", hidden, stranger, Scope{}, false},
		{"owner profile hidden", hidden, owner, Scope{UploaderID: 7}, true},
		{"owner profile anonymous upload", anonUpload, owner, Scope{UploaderID: 7}, true},
		{"owner profile rss hidden", hidden, owner, Scope{UploaderID: 7, RSS: true}, false},
		{"owner profile rss anonymous upload", anonUpload, owner, Scope{UploaderID: 7, RSS: true}, false},
		{"stranger profile anonymous upload", anonUpload, stranger, Scope{UploaderID: 7}, false},
		{"stranger profile plain", plain, stranger, Scope{UploaderID: 7}, true},
		{"admin profile anonymous upload", anonUpload, admin, Scope{UploaderID: 7}, true},
		{"admin rss hidden", hidden, admin, Scope{RSS: true}, false},
		{"profile scope excludes other uploaders", othersHidden, admin, Scope{UploaderID: 7}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsVisible(tt.torrent, tt.viewer, tt.scope))
		})
	}
}

func TestVisibilityKeyDistinguishesOwnerException(t *testing.T) {
	assert.NotEqual(t, VisibilityFilter(owner, Scope{}).Key(), VisibilityFilter(stranger, Scope{}).Key())
	assert.Equal(t, VisibilityFilter(moderator, Scope{}).Key(), VisibilityFilter(admin, Scope{}).Key())
	assert.Equal(t, VisibilityFilter(stranger, Scope{UploaderID: 7}).Key(), VisibilityFilter(anonymous, Scope{UploaderID: 7}).Key())
	assert.True(t, VisibilityFilter(admin, Scope{}).Unrestricted())
}

func TestMaskUploader(t *testing.T) {
	view := domain.TorrentView{Torrent: domain.Torrent{ID: 1, UploaderID: 7, Flags: domain.Flags{Anonymous: true}}}

	masked := view
	maskUploader(&masked, stranger)
	assert.Zero(t, masked.UploaderID)

	for _, viewer := range []domain.Viewer{owner, admin, moderator} {
		kept := view
		maskUploader(&kept, viewer)
		assert.Equal(t, domain.UserID(7), kept.UploaderID)
	}

	public := domain.TorrentView{Torrent: domain.Torrent{ID: 2, UploaderID: 7}}
	maskUploader(&public, anonymous)
	assert.Equal(t, domain.UserID(7), public.UploaderID)
}
