package domain

// Viewer is the identity handed over by the authentication layer. The zero
// value is the anonymous viewer.
type Viewer struct {
	ID          UserID
	IsAdmin     bool
	IsModerator bool
	IsTrusted   bool
}

func Anonymous() Viewer {
	return Viewer{}
}

func (v Viewer) IsAnonymous() bool {
	return v.ID == 0
}

// Privileged reports whether the viewer bypasses visibility restrictions.
func (v Viewer) Privileged() bool {
	return v.IsAdmin || v.IsModerator
}

func (v Viewer) Owns(uploader UserID) bool {
	return !v.IsAnonymous() && uploader != 0 && v.ID == uploader
}
