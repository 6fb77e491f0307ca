package repository

const (
	recordsKey        = "remind:records"
	recordSequenceKey = "remind:records:seq"

	syncItemsKey        = "remind:sync:items"
	syncOrderKey        = "remind:sync:order"
	deadLettersKey      = "remind:sync:deadletters"
	deadLetterOrderKey  = "remind:sync:deadletters:order"
	conflictsKey        = "remind:sync:conflicts"
	healthKey           = "remind:health"
	errorLogKey         = "remind:errorlog"
	defaultConflictsCap = 200
)
