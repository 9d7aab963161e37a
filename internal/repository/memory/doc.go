// Package memory provides mutex-guarded in-process implementations of the
// service repositories. It backs local development, single-node deployments
// and the service and HTTP test suites.
package memory
