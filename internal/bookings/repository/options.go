package repository

import "go.mongodb.org/mongo-driver/mongo/options"

// reconcileBatchSize bounds memory while the reconciler streams collections.
const reconcileBatchSize = 200

func optionsFindBatch(batchSize int32) *options.FindOptions {
	return options.Find().SetBatchSize(batchSize)
}
