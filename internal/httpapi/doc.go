// Package httpapi exposes the REST surface: schedule configuration,
// recipient registration, delivery-log reads and test dispatch, all keyed
// by user under /api/users/{userID}/.
//
// Malformed schedule configuration is rejected here with 400; the
// scheduler core only ever sees validated schedules.
package httpapi
