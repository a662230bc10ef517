package errx

import (
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// WrapNeo4j maps driver errors to an ExecutionFailed AppError. Server-side
// errors keep their status code in the message so the router can feed it
// back into query synthesis.
func WrapNeo4j(err error) error {
	if err == nil {
		return nil
	}
	var neoErr *neo4j.Neo4jError
	switch {
	case errors.As(err, &neoErr):
		return ExecutionFailed(err, Neo4jErrorMessage+" ("+neoErr.Code+")")
	case neo4j.IsConnectivityError(err):
		return ExecutionFailed(err, Neo4jErrorMessage+" (connectivity)")
	default:
		return ExecutionFailed(err, Neo4jErrorMessage)
	}
}
