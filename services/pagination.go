package services

import (
	"regexp"

	"taskboard-project/backend/errs"
)

// pageWindow translates a 1-based page number into a skip/limit window and
// reports the total page count. Pages beyond the last one are rejected;
// page 1 of an empty result set is valid and yields an empty window.
func pageWindow(total int64, page, pageSize int) (skip, limit int64, totalPages int, err error) {
	if page < 1 {
		return 0, 0, 0, errs.New(errs.Validation, "page number must be at least 1")
	}
	totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	if page > totalPages && page != 1 {
		return 0, 0, totalPages, errs.Newf(errs.PageOutOfRange, "page %d is out of range, total pages: %d", page, totalPages)
	}
	return int64(page-1) * int64(pageSize), int64(pageSize), totalPages, nil
}

// prefixPattern builds a case-insensitive prefix regex for the given literal.
func prefixPattern(literal string) string {
	return "^" + regexp.QuoteMeta(literal)
}

// containsPattern builds a case-insensitive substring regex for the given literal.
func containsPattern(literal string) string {
	return regexp.QuoteMeta(literal)
}
