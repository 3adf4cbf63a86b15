package model

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix,
// e.g. acc_9f1c..., txn_0b3d..., lqe_77aa...
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// PageCount computes the number of pages a listing spans.
func PageCount(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	count := int(total) / limit
	if int(total)%limit != 0 {
		count++
	}
	return count
}

// Offset converts a 1-based page and a limit into a row offset.
func Offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
