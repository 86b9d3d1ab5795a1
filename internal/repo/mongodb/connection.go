package mongodb

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// DB bundles the connected client and the database handle so fx can
// provide both to the repositories.
type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
}
