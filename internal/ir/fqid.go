package ir

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// KeySeparator joins collection, id and field in fully-qualified keys.
const KeySeparator = "/"

var (
	collectionPattern = regexp.MustCompile(`^[a-z]([a-z_]*[a-z])?$`)
	fieldPattern      = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// FQID is a fully-qualified model id: "<collection>/<id>".
type FQID string

// NewFQID builds an FQID. It does not validate its input.
func NewFQID(collection string, id int64) FQID {
	return FQID(collection + KeySeparator + strconv.FormatInt(id, 10))
}

// ParseFQID validates s and returns it as an FQID.
func ParseFQID(s string) (FQID, error) {
	collection, idPart, ok := strings.Cut(s, KeySeparator)
	if !ok || strings.Contains(idPart, KeySeparator) {
		return "", fmt.Errorf("invalid fqid %q: want <collection>/<id>", s)
	}
	if !IsValidCollection(collection) {
		return "", fmt.Errorf("invalid fqid %q: bad collection", s)
	}
	if _, err := parseID(idPart); err != nil {
		return "", fmt.Errorf("invalid fqid %q: %w", s, err)
	}
	return FQID(s), nil
}

// Collection returns the collection part of the FQID.
func (f FQID) Collection() string {
	collection, _, _ := strings.Cut(string(f), KeySeparator)
	return collection
}

// ID returns the numeric id part of the FQID, or 0 if it is malformed.
func (f FQID) ID() int64 {
	_, idPart, _ := strings.Cut(string(f), KeySeparator)
	id, err := parseID(idPart)
	if err != nil {
		return 0
	}
	return id
}

// FQField returns "<collection>/<id>/<field>".
func (f FQID) FQField(field string) string {
	return string(f) + KeySeparator + field
}

// CollectionField returns "<collection>/<field>" for this model's collection.
func (f FQID) CollectionField(field string) string {
	return f.Collection() + KeySeparator + field
}

// IsValidCollection reports whether name is a valid collection name.
func IsValidCollection(name string) bool {
	return collectionPattern.MatchString(name)
}

// IsValidField reports whether name is a valid field name.
func IsValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 || strconv.FormatInt(id, 10) != s {
		return 0, fmt.Errorf("id %q is not a positive integer", s)
	}
	return id, nil
}

// LockKind identifies which kind of key a locked field entry uses.
type LockKind int

const (
	// LockFQID locks a whole model.
	LockFQID LockKind = iota + 1
	// LockFQField locks a single field of a model.
	LockFQField
	// LockCollectionField locks one field across a whole collection.
	LockCollectionField
)

// String returns the lock kind name.
func (k LockKind) String() string {
	switch k {
	case LockFQID:
		return "fqid"
	case LockFQField:
		return "fqfield"
	case LockCollectionField:
		return "collectionfield"
	}
	return fmt.Sprintf("LockKind(%d)", int(k))
}

// ParseLockKey classifies a locked_fields key:
//
//	"motion/1"        -> LockFQID
//	"motion/1/title"  -> LockFQField
//	"motion/title"    -> LockCollectionField
func ParseLockKey(key string) (LockKind, error) {
	parts := strings.Split(key, KeySeparator)
	switch len(parts) {
	case 2:
		if !IsValidCollection(parts[0]) {
			break
		}
		if _, err := parseID(parts[1]); err == nil {
			return LockFQID, nil
		}
		if IsValidField(parts[1]) {
			return LockCollectionField, nil
		}
	case 3:
		if !IsValidCollection(parts[0]) || !IsValidField(parts[2]) {
			break
		}
		if _, err := parseID(parts[1]); err == nil {
			return LockFQField, nil
		}
	}
	return 0, fmt.Errorf("invalid lock key %q", key)
}
