// Package politeness keeps external lookups well-mannered: a per-host Pacer
// spaces consecutive requests by a random delay, and a RobotsGate consults
// robots.txt before pages are scraped.
package politeness
