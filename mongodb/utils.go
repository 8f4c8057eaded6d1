package mongodb

import (
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func replaceUpsert() options.Lister[options.ReplaceOptions] {
	return options.Replace().SetUpsert(true)
}
