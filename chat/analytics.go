package chat

import (
	"context"
	"encoding/json"
	"log"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LogQueryAnalytics records a query/response pair. Failures are logged and
// never surfaced; analytics must not block or fail a chat turn.
func LogQueryAnalytics(ctx context.Context, db *gorm.DB, userID *uint64, query string, response string, metadata map[string]interface{}) {
	if db == nil {
		return
	}

	record := AnalyticsRecord{
		UserID:   userID,
		Query:    query,
		Response: response,
	}
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			record.Metadata = datatypes.JSON(raw)
		}
	}

	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		log.Printf("chat: analytics write failed: %v", err)
	}
}
