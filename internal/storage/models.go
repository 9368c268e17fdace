package storage

// AppSetting stores a single key-value configuration pair. Task and
// segment state is never stored here — that lives in the JSON state
// files under "<download_dir>/.parts/" per spec §6; this table is purely
// the ambient settings and history the engine needs across restarts.
type AppSetting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (AppSetting) TableName() string { return "app_settings" }

// DailyStat tracks aggregate bytes and files completed per calendar day,
// fed by the scheduler on every task completion.
type DailyStat struct {
	Date  string `gorm:"primaryKey"` // "YYYY-MM-DD"
	Bytes int64  `gorm:"default:0"`
	Files int64  `gorm:"default:0"`
}

func (DailyStat) TableName() string { return "daily_stats" }

// AuditEntry is one row of the task lifecycle audit trail (create, pause,
// resume, cancel, delete, rename, error).
type AuditEntry struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Timestamp string `gorm:"index"`
	TaskID    string `gorm:"index"`
	Action    string
	Details   string
}

func (AuditEntry) TableName() string { return "audit_entries" }
