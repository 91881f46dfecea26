// Package ambient derives the context snapshot used to score and describe
// deliveries: time-of-day bucket, season, weather and special date.
//
// Every context value is a closed string type with a Valid method. Values
// cross package boundaries as these types and are only turned into plain
// strings when serialised.
//
// # Buckets
//
//   - Time of day: [5,12) morning, [12,17) afternoon, [17,21) evening, else night
//   - Season: Mar-May spring, Jun-Aug summer, Sep-Nov autumn, else winter
//   - Special dates: fixed month/day pairs, exact match only
//
// All buckets are computed in the location carried by the time value passed
// to Build. Callers choose the user's zone by converting before the call.
package ambient
