// Package pgstore implements portalauth.UserStore and portalauth.TokenStore on
// PostgreSQL through database/sql and the pgx driver. The schema ships as
// embedded goose migrations; call [Migrate] once at startup.
package pgstore
