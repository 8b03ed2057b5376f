package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptHistoryKey returns the store key holding a user's completed attempts
func (r *CacheKeyStruct) AttemptHistoryKey(userID string) string {
	return fmt.Sprintf("exam:attempts:%s", userID)
}

// CatalogKey returns the store key of the last catalog fetched successfully
func (r *CacheKeyStruct) CatalogKey() string {
	return "exam:catalog"
}

var CacheKey = NewCacheKeyStruct()
