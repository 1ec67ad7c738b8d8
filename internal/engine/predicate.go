package engine

import (
	"fmt"
	"strings"

	"github.com/bmlam89/ebay-deletion-handler/internal/model"
	"go.mongodb.org/mongo-driver/bson"
)

// IdentityKind names which part of the identity triple a stored field
// carries.
type IdentityKind string

const (
	KindUsername  IdentityKind = "username"
	KindUserID    IdentityKind = "user_id"
	KindEiasToken IdentityKind = "eias_token"
)

// FieldRef is one candidate identity-bearing field: a dotted document
// path and the identity component it holds. Different subsystems write
// the same identity under different names and nestings, so matching is
// driven by this list rather than by any schema.
type FieldRef struct {
	Path string
	Kind IdentityKind
}

// DefaultFieldRefs covers the direct, nested, and alternate-convention
// spellings observed across collections.
func DefaultFieldRefs() []FieldRef {
	return []FieldRef{
		{Path: "userId", Kind: KindUserID},
		{Path: "user_id", Kind: KindUserID},
		{Path: "user.userId", Kind: KindUserID},
		{Path: "username", Kind: KindUsername},
		{Path: "userName", Kind: KindUsername},
		{Path: "user.username", Kind: KindUsername},
		{Path: "eiasToken", Kind: KindEiasToken},
		{Path: "eias_token", Kind: KindEiasToken},
		{Path: "user.eiasToken", Kind: KindEiasToken},
	}
}

// ParseFieldRefs reads a comma-separated "path=kind" override list, e.g.
// "ownerId=user_id,account.name=username".
func ParseFieldRefs(s string) ([]FieldRef, error) {
	var refs []FieldRef
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		path, kind, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("field ref %q: want path=kind", part)
		}
		switch IdentityKind(kind) {
		case KindUsername, KindUserID, KindEiasToken:
			refs = append(refs, FieldRef{Path: strings.TrimSpace(path), Kind: IdentityKind(kind)})
		default:
			return nil, fmt.Errorf("field ref %q: unknown kind %q", part, kind)
		}
	}
	return refs, nil
}

func value(id model.Identity, kind IdentityKind) string {
	switch kind {
	case KindUsername:
		return id.Username
	case KindUserID:
		return id.UserID
	case KindEiasToken:
		return id.EiasToken
	}
	return ""
}

// matchFilter builds the OR predicate: a document matches when any
// candidate field equals the corresponding identity value. Empty identity
// components produce no clause; an identity with no usable components
// yields a filter matching nothing.
func matchFilter(refs []FieldRef, id model.Identity) bson.M {
	var or []bson.M
	for _, ref := range refs {
		v := value(id, ref.Kind)
		if v == "" {
			continue
		}
		or = append(or, bson.M{ref.Path: v})
	}
	if len(or) == 0 {
		return bson.M{"_id": bson.M{"$exists": false}}
	}
	return bson.M{"$or": or}
}
