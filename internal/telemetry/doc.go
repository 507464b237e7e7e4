// Package telemetry is the gateway in front of the OpenSky state-vector API.
//
// credentials.go holds the TokenCache, a single OAuth2 client-credentials bearer
// token that is exchanged only when absent or expired (30s safety margin).
//
// fetcher.go issues GET /states/all. A 429 is retried once after the
// provider's retry-after hint (default 10s, minimum 1s); a 401 invalidates the
// cached token and is retried once with a fresh one. Rate limiting is handled
// before authentication so a 429 is never mistaken for a stale credential.
//
// normalize.go decodes the positional state-vector arrays into FlightPosition
// values. Short or mistyped vectors are counted as malformed and skipped;
// on-ground and position-less vectors are filtered.
//
// snapshot.go caches the default (unfiltered, non-extended) snapshot for the
// configured TTL (default 90s). Filtered requests always go upstream.
package telemetry
