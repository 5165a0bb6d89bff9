// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workflow

import (
	"fmt"
	"slices"

	"github.com/taibuivan/flowra/internal/platform/apperr"
)

// # Ordering Invariants

// NextOrder returns the order an appended step receives when none is supplied:
// one past the current maximum.
func NextOrder(steps []*Step) int {
	highest := 0
	for _, step := range steps {
		if step.Order > highest {
			highest = step.Order
		}
	}
	return highest + 1
}

// ValidateOrders checks that every order is a positive integer and that no
// two steps collide. Runs after every step mutation, before persistence.
func ValidateOrders(steps []*Step) error {
	seen := make(map[int]bool, len(steps))
	for _, step := range steps {
		if step.Order < 1 {
			return apperr.ValidationError(fmt.Sprintf("Step order %d must be a positive integer", step.Order))
		}
		if seen[step.Order] {
			return apperr.ValidationError(fmt.Sprintf("Step order %d is already taken", step.Order))
		}
		seen[step.Order] = true
	}
	return nil
}

// SortByOrder sorts steps ascending by their order value, in place.
func SortByOrder(steps []*Step) {
	slices.SortFunc(steps, func(a, b *Step) int {
		return a.Order - b.Order
	})
}

// CompactOrders renumbers steps to a contiguous 1..N sequence, preserving
// their existing relative order. Applied after step deletion.
func CompactOrders(steps []*Step) {
	SortByOrder(steps)
	for index, step := range steps {
		step.Order = index + 1
	}
}

/*
ApplyReorder renumbers steps 1..N following the supplied sequence of current
order values.

Description: The sequence must be a permutation of the existing orders; the
step holding the first listed order becomes 1, the second becomes 2, and so
on. Step IDs are untouched.

Parameters:
  - steps: []*Step
  - sequence: []int (permutation of current order values)

Returns:
  - err: Validation failure when the sequence is not a permutation
*/
func ApplyReorder(steps []*Step, sequence []int) error {

	if len(sequence) != len(steps) {
		return apperr.ValidationError(fmt.Sprintf("Reorder sequence must list all %d step orders", len(steps)))
	}

	byOrder := make(map[int]*Step, len(steps))
	for _, step := range steps {
		byOrder[step.Order] = step
	}

	reordered := make([]*Step, 0, len(sequence))
	claimed := make(map[int]bool, len(sequence))
	for _, order := range sequence {
		step, ok := byOrder[order]
		if !ok {
			return apperr.ValidationError(fmt.Sprintf("No step has order %d", order))
		}
		if claimed[order] {
			return apperr.ValidationError(fmt.Sprintf("Order %d listed twice in reorder sequence", order))
		}
		claimed[order] = true
		reordered = append(reordered, step)
	}

	for index, step := range reordered {
		step.Order = index + 1
	}

	return nil
}

// FindByOrder returns the step holding the given order, or nil.
func FindByOrder(steps []*Step, order int) *Step {
	for _, step := range steps {
		if step.Order == order {
			return step
		}
	}
	return nil
}

// FindByStepID returns the step with the given ID, or nil.
func FindByStepID(steps []*Step, stepID string) *Step {
	for _, step := range steps {
		if step.ID == stepID {
			return step
		}
	}
	return nil
}
