package validators

import "go.mongodb.org/mongo-driver/bson"

var StationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"name",
			"address",
			"owner_id",
			"slot_data",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"address": bson.M{
				"bsonType":  "string",
				"minLength": 5,
				"maxLength": 200,
			},

			"owner_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"slot_data": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"bucket_id", "time", "total_slots", "booked_slots"},
					"properties": bson.M{
						"bucket_id": bson.M{
							"bsonType": "string",
						},
						"time": bson.M{
							"bsonType":  "string",
							"minLength": 1,
							"maxLength": 50,
						},
						"total_slots": bson.M{
							"bsonType": "int",
							"minimum":  1,
							"maximum":  500,
						},
						"booked_slots": bson.M{
							"bsonType": "array",
							"items": bson.M{
								"bsonType": "object",
								"required": []string{"user_id", "ordinal", "booking_id"},
								"properties": bson.M{
									"user_id": bson.M{
										"bsonType": "string",
									},
									"user_name": bson.M{
										"bsonType": "string",
									},
									"ordinal": bson.M{
										"bsonType": "int",
										"minimum":  1,
									},
									"booking_id": bson.M{
										"bsonType": "string",
									},
									"created_at": bson.M{
										"bsonType": "date",
									},
								},
							},
						},
					},
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
