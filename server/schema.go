package server

import (
	"github.com/rs/cors"

	"net/http"
)

// GraphQLHandler serves the control API of r. Uploads of message bundles
// arrive as multipart requests with a zip part.
func GraphQLHandler(r *Resolver) http.Handler {
	// CORS allows local dashboards
	c := cors.New(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return c.Handler(MustSchemaHandler(schemaText, r))
}

const schemaText = `
  schema {
    query: Query
    mutation: Mutation
  }

  # The Query type, represents all of the entry points
  type Query {
    status: SendStatus!
    events(after: Int): [SendEvent!]!
    completionURLs(key: String!): [String!]!
    lureInfo: LureInfo!
  }

  type Mutation {
    startSend: SendStatus!
    pauseSend: SendStatus!
    unpauseSend: SendStatus!
    stopSend(confirm: Boolean!): SendStatus!
    importMessage(destDir: String!): Boolean!
  }

  # Snapshot of the send controller
  type SendStatus {
    state: String!
    done: Int!
    total: Int!
    active: Boolean!
  }

  # Progress event, numbered for polling
  type SendEvent {
    seq: Int!
    kind: String!
    text: String
    done: Int
    total: Int
  }

  # Build/version information
  type LureInfo {
    version: String!
    buildDate: String!
  }
`
