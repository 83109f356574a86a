package revisions

import (
	"errors"
	"fmt"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")

	ErrMissingIdentity   = errors.New("revisions: a user id or anonymous session id is required")
	ErrMissingComment    = errors.New("revisions: a review comment is required")
	ErrMalformedField    = characters.ErrMalformedField
	ErrCharacterNotFound = errors.New("revisions: character not found")
	ErrRevisionNotFound  = errors.New("revisions: revision not found")
	ErrNoFieldsChanged   = errors.New("revisions: no fields changed")
	ErrNotRevisionEditor = errors.New("revisions: only the original editor may amend a revision")
	ErrInvalidVariant    = errors.New("revisions: invalid variant")

	ErrMultiCharacterTarget = fmt.Errorf("%w: target must be a single character", ErrInvalidVariant)
	ErrSelfReference        = fmt.Errorf("%w: a character cannot be a variant of itself", ErrInvalidVariant)
	ErrDanglingTarget       = fmt.Errorf("%w: target character does not exist", ErrInvalidVariant)
	ErrChainedVariant       = fmt.Errorf("%w: target is itself a variant", ErrInvalidVariant)
	ErrReverseChain         = fmt.Errorf("%w: character is already the target of another variant", ErrInvalidVariant)
)

const (
	reasonMissingDatabase   = "missing_database"
	reasonMissingIDProvider = "missing_id_provider"
	reasonMissingIdentity   = "missing_identity"
	reasonMissingComment    = "missing_comment"
	reasonMalformedField    = "malformed_field"
	reasonCharacterNotFound = "character_not_found"
	reasonRevisionNotFound  = "revision_not_found"
	reasonNoFieldsChanged   = "no_fields_changed"
	reasonNotEditor         = "not_revision_editor"
	reasonQueryFailed       = "query_failed"
	reasonInsertFailed      = "insert_failed"
	reasonUpdateFailed      = "update_failed"
	reasonIDFailed          = "id_generation_failed"
)

var variantReasons = []struct {
	err    error
	reason string
}{
	{ErrMultiCharacterTarget, "multi_character_target"},
	{ErrSelfReference, "self_reference"},
	{ErrDanglingTarget, "dangling_target"},
	{ErrChainedVariant, "chained_variant"},
	{ErrReverseChain, "reverse_chain"},
}

// VariantReason returns the stable reason code of an invalid-variant error.
func VariantReason(err error) string {
	for _, candidate := range variantReasons {
		if errors.Is(err, candidate.err) {
			return candidate.reason
		}
	}
	return "invalid_variant"
}
