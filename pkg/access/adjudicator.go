/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package access decides whether an entity may receive a rewrapped key.
// Every denial is the same Adjudicator error kind on the wire; the messages
// distinguish the failing rule for logs only.
package access

import (
	"github.com/trustdataformat/kas-go/pkg/common/log"
	"github.com/trustdataformat/kas-go/pkg/entity"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
	"github.com/trustdataformat/kas-go/pkg/policy"
)

var logger = log.New("kas/access")

// Adjudicator evaluates policies against entity attributes using the rules
// in an AttributePolicyCache.
type Adjudicator struct {
	cache *policy.Cache
}

// New returns an Adjudicator over the given rule cache.
func New(cache *policy.Cache) *Adjudicator {
	return &Adjudicator{cache: cache}
}

func denied(format string, args ...interface{}) error {
	return kaserrors.New(kaserrors.Adjudicator, format, args...)
}

// CanAccess grants or denies a single-entity request. A nil return means
// access is allowed.
func (a *Adjudicator) CanAccess(pol *policy.Policy, ent *entity.Entity) error {
	if err := checkDissem(pol, ent.UserID); err != nil {
		return err
	}

	for ns, dataValues := range pol.DataAttributes.ClusterByNamespace() {
		rulePolicy := a.cache.Get(ns)
		entityValues := ent.Attributes.InNamespace(ns)

		if err := a.checkNamespace(rulePolicy, dataValues, entityValues); err != nil {
			logger.Infof("access denied for %q on %s: %v", ent.UserID, ns, err)
			return err
		}
	}

	return nil
}

// CanAccessV2 grants or denies a multi-entity claim set. Each attribute set
// is one entitlement identity; allOf requires every identity to qualify,
// anyOf requires some identity per data value, hierarchy uses the least
// privileged identity.
func (a *Adjudicator) CanAccessV2(pol *policy.Policy, userID string, sets []*policy.AttributeSet) error {
	if err := checkDissem(pol, userID); err != nil {
		return err
	}

	if len(sets) == 0 {
		sets = []*policy.AttributeSet{policy.NewAttributeSet()}
	}

	for ns, dataValues := range pol.DataAttributes.ClusterByNamespace() {
		rulePolicy := a.cache.Get(ns)

		var err error

		switch rulePolicy.Rule {
		case policy.RuleAllOf:
			err = allEntitiesAllOf(rulePolicy, dataValues, sets)
		case policy.RuleAnyOf:
			err = anyEntityAnyOf(rulePolicy, dataValues, sets)
		case policy.RuleHierarchy:
			err = leastPrivilegedHierarchy(rulePolicy, dataValues, sets)
		default:
			err = kaserrors.New(kaserrors.UnknownAttributePolicy, "rule %q", rulePolicy.Rule)
		}

		if err != nil {
			logger.Infof("access denied for %q on %s: %v", userID, ns, err)
			return err
		}
	}

	return nil
}

func checkDissem(pol *policy.Policy, userID string) error {
	if pol.Dissem.Len() == 0 {
		return nil
	}

	if !pol.Dissem.Contains(userID) {
		return denied("%q not on dissemination list", userID)
	}

	return nil
}

func (a *Adjudicator) checkNamespace(rulePolicy *policy.AttributePolicy,
	dataValues, entityValues []policy.AttributeValue) error {
	switch rulePolicy.Rule {
	case policy.RuleAllOf:
		return checkAllOf(rulePolicy, dataValues, entityValues)
	case policy.RuleAnyOf:
		return checkAnyOf(rulePolicy, dataValues, entityValues)
	case policy.RuleHierarchy:
		return checkHierarchy(rulePolicy, dataValues, entityValues)
	}

	return kaserrors.New(kaserrors.UnknownAttributePolicy, "rule %q", rulePolicy.Rule)
}

func checkAllOf(rulePolicy *policy.AttributePolicy, dataValues, entityValues []policy.AttributeValue) error {
	have := map[policy.AttributeValue]struct{}{}
	for _, v := range entityValues {
		have[v] = struct{}{}
	}

	for _, d := range dataValues {
		if _, ok := have[d]; !ok {
			return denied("allOf: missing %s", d)
		}
	}

	return nil
}

func checkAnyOf(rulePolicy *policy.AttributePolicy, dataValues, entityValues []policy.AttributeValue) error {
	if len(dataValues) == 0 {
		return nil
	}

	have := map[policy.AttributeValue]struct{}{}
	for _, v := range entityValues {
		have[v] = struct{}{}
	}

	for _, d := range dataValues {
		if _, ok := have[d]; ok {
			return nil
		}
	}

	return denied("anyOf: no overlap in %s", rulePolicy.Namespace)
}

func checkHierarchy(rulePolicy *policy.AttributePolicy, dataValues, entityValues []policy.AttributeValue) error {
	if len(dataValues) != 1 {
		return denied("hierarchy: %d data values in %s, want 1", len(dataValues), rulePolicy.Namespace)
	}

	if len(entityValues) != 1 {
		return denied("hierarchy: %d entity values in %s, want 1", len(entityValues), rulePolicy.Namespace)
	}

	dataRank := rulePolicy.Rank(dataValues[0].Value())
	if dataRank < 0 {
		return denied("hierarchy: data value %s not ranked", dataValues[0])
	}

	entityRank := rulePolicy.Rank(entityValues[0].Value())
	if entityRank < 0 {
		return denied("hierarchy: entity value %s not ranked", entityValues[0])
	}

	if entityRank > dataRank {
		return denied("hierarchy: entity below required rank in %s", rulePolicy.Namespace)
	}

	return nil
}

func allEntitiesAllOf(rulePolicy *policy.AttributePolicy, dataValues []policy.AttributeValue,
	sets []*policy.AttributeSet) error {
	for _, set := range sets {
		if err := checkAllOf(rulePolicy, dataValues, set.InNamespace(rulePolicy.Namespace)); err != nil {
			return err
		}
	}

	return nil
}

func anyEntityAnyOf(rulePolicy *policy.AttributePolicy, dataValues []policy.AttributeValue,
	sets []*policy.AttributeSet) error {
	if len(dataValues) == 0 {
		return nil
	}

	for _, d := range dataValues {
		matched := false

		for _, set := range sets {
			if set.Contains(d) {
				matched = true
				break
			}
		}

		if !matched {
			return denied("anyOf: no entity holds %s", d)
		}
	}

	return nil
}

// leastPrivilegedHierarchy clears access only when every identity is ranked
// and the weakest of them still meets the data value's rank.
func leastPrivilegedHierarchy(rulePolicy *policy.AttributePolicy, dataValues []policy.AttributeValue,
	sets []*policy.AttributeSet) error {
	if len(dataValues) != 1 {
		return denied("hierarchy: %d data values in %s, want 1", len(dataValues), rulePolicy.Namespace)
	}

	dataRank := rulePolicy.Rank(dataValues[0].Value())
	if dataRank < 0 {
		return denied("hierarchy: data value %s not ranked", dataValues[0])
	}

	leastPrivilegedRank := -1

	for _, set := range sets {
		entityValues := set.InNamespace(rulePolicy.Namespace)
		if len(entityValues) != 1 {
			return denied("hierarchy: %d entity values in %s, want 1", len(entityValues), rulePolicy.Namespace)
		}

		rank := rulePolicy.Rank(entityValues[0].Value())
		if rank < 0 {
			return denied("hierarchy: entity value %s not ranked", entityValues[0])
		}

		if rank > leastPrivilegedRank {
			leastPrivilegedRank = rank
		}
	}

	if leastPrivilegedRank > dataRank {
		return denied("hierarchy: weakest entity below required rank in %s", rulePolicy.Namespace)
	}

	return nil
}
