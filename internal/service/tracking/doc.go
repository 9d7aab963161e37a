// Package tracking implements tracking-token issuance and resolution, the
// engagement event recorder, and the offline reconciler that converges the
// two independently stored open/click counters.
//
// The service layer depends on the repository interfaces defined in this
// package. Implementations live in repository/postgres, repository/memory,
// repository/redis and repository/dynamo.
package tracking
