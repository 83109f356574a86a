package revisions

import (
	"slices"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"gorm.io/gorm"
)

// validateProposedVariant checks a proposal's variantOf against the current effective records.
func validateProposedVariant(tx *gorm.DB, character string, proposal characters.Proposal) error {
	if !proposal.Has(characters.FieldVariantOf) {
		return nil
	}
	return validateVariantTarget(tx, character, proposal.Values.VariantOf)
}

// validateApprovedVariant re-checks the variantOf a revision is about to make effective.
// Pending revisions are invisible to the effective view, so two proposals that were valid
// on submit can conflict once both are approved.
func validateApprovedVariant(tx *gorm.DB, revision Revision, merged characters.Fields) error {
	if revision.ChangedFields != nil && !slices.Contains(revision.ChangedFields, characters.FieldVariantOf) {
		return nil
	}
	return validateVariantTarget(tx, revision.Character, merged.VariantOf)
}

// validateVariantTarget keeps the variant graph a forest of depth one: every character
// is either canonical or a variant of exactly one canonical character. A blank target
// makes character canonical and is always valid.
func validateVariantTarget(tx *gorm.DB, character string, variantOf *string) error {
	if variantOf == nil || *variantOf == "" {
		return nil
	}
	target := *variantOf

	if !characters.IsSingleCharacter(target) {
		return ErrMultiCharacterTarget
	}
	if target == character {
		return ErrSelfReference
	}
	targetRecord, found, err := effectiveRecord(tx, target)
	if err != nil {
		return err
	}
	if !found {
		return ErrDanglingTarget
	}
	if targetRecord.VariantOf != nil && *targetRecord.VariantOf != "" {
		return ErrChainedVariant
	}

	pointing, err := charactersPointingAt(tx, character)
	if err != nil {
		return err
	}
	for _, candidate := range pointing {
		record, found, err := effectiveRecord(tx, candidate)
		if err != nil {
			return err
		}
		if found && record.VariantOf != nil && *record.VariantOf == character {
			return ErrReverseChain
		}
	}
	return nil
}

// charactersPointingAt lists characters whose canonical record or some approved revision
// names character as variantOf. Callers confirm against the effective record.
func charactersPointingAt(tx *gorm.DB, character string) ([]string, error) {
	var canonical []string
	if err := tx.Model(&characters.Character{}).Where(queryVariantOf, character, character).Pluck("hanzi", &canonical).Error; err != nil {
		return nil, err
	}
	var revised []string
	if err := tx.Model(&Revision{}).Where(queryApprovedTarget, character, character, StatusApproved).Distinct().Pluck("hanzi", &revised).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(canonical)+len(revised))
	candidates := make([]string, 0, len(canonical)+len(revised))
	for _, candidate := range append(canonical, revised...) {
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}
