package domain

type OwnerKind string

const (
	OwnerUser    OwnerKind = "user"
	OwnerSession OwnerKind = "session"
)

// Owner identifies who a cart belongs to. Exactly one of UserID or SessionID
// is set on a valid owner.
type Owner struct {
	UserID    string
	SessionID string
}

func UserOwner(userID string) Owner {
	return Owner{UserID: userID}
}

func SessionOwner(sessionID string) Owner {
	return Owner{SessionID: sessionID}
}

func (o Owner) Valid() bool {
	return (o.UserID == "") != (o.SessionID == "")
}

func (o Owner) Kind() OwnerKind {
	if o.UserID != "" {
		return OwnerUser
	}
	return OwnerSession
}

func (o Owner) IsGuest() bool {
	return o.UserID == "" && o.SessionID != ""
}

func (o Owner) ID() string {
	if o.UserID != "" {
		return o.UserID
	}
	return o.SessionID
}

// Topic is the broadcast topic of the owner: "user:{id}" or "session:{id}".
// It doubles as the cache key suffix.
func (o Owner) Topic() string {
	return string(o.Kind()) + ":" + o.ID()
}

func (o Owner) String() string {
	return o.Topic()
}

func CartTopic(cartID string) string {
	return "cart:" + cartID
}
