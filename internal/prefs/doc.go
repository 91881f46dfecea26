// Package prefs holds the user's delivery preferences: the active hours
// window, how many deliveries per week, and an optional pause.
package prefs
