package validators

import "go.mongodb.org/mongo-driver/bson"

var UserValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"name",
			"email",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"email": bson.M{
				"bsonType":  "string",
				"minLength": 3,
				"maxLength": 200,
			},

			"current_booking": bson.M{
				"bsonType": []string{"object", "null"},
				"properties": bson.M{
					"booking_id": bson.M{
						"bsonType": "string",
					},
					"station_id": bson.M{
						"bsonType": "string",
					},
					"station_name": bson.M{
						"bsonType": "string",
					},
					"station_address": bson.M{
						"bsonType": "string",
					},
					"time": bson.M{
						"bsonType": "string",
					},
					"ordinal": bson.M{
						"bsonType": "int",
						"minimum":  1,
					},
					"created_at": bson.M{
						"bsonType": "date",
					},
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
