package mcpserver

// ItineraryFormatContract describes the canonical trip structure that
// LLM consumers should assume when reading or summarizing itineraries.
const ItineraryFormatContract = `# Raido Itinerary Format Contract

Every itinerary served by Raido follows this structure.

## Structure

` + "```" + `
Trip                                # one owner, one date window
├── visibility: private | public    # only public trips are listable here
├── share_token (optional)          # opaque link token, may carry an expiry
└── Stops, ordered by position      # ascending sequence, gaps allowed
    ├── city, lat/lon
    ├── arrival_date, departure_date
    └── Items, grouped by day       # day 0 = the stop's arrival day
        ├── position                # unique within one (stop, day) pair
        ├── start_time, end_time    # "HH:MM", 24-hour, may be empty
        ├── category                # closed set, see below
        └── cost, notes
` + "```" + `

## Rules

1. **Positions are sequence numbers, not array indexes.** They are unique
   among live siblings (stops within a trip, items within one (stop, day)
   pair) and listings always come back sorted by them, but deletes leave
   gaps and the lowest live position may exceed 1. Never do arithmetic
   on them.
2. **Days are relative.** ` + "`" + `day` + "`" + ` counts from the stop's arrival date
   (0 = arrival day). It is an integer >= 0, never a calendar date.
3. **Categories** form a closed set: ` + "`" + `food` + "`" + `, ` + "`" + `transport` + "`" + `,
   ` + "`" + `accommodation` + "`" + `, ` + "`" + `sightseeing` + "`" + `, ` + "`" + `entertainment` + "`" + `,
   ` + "`" + `shopping` + "`" + `, ` + "`" + `other` + "`" + `. Anything else is rejected on write.
4. **Times** use ` + "`" + `HH:MM` + "`" + ` 24-hour form. Empty means unscheduled; do not
   invent times that are not there.
5. **Ids** are 24-character hex strings. Treat them as opaque.
6. **Share links** resolve any trip while the token is valid, even a
   private one. An expired or revoked token reads as not found; there is
   no way to tell those apart from a token that never existed.
7. **View counts** on shared trips are advisory and may lag behind the
   latest resolves.

## Example

` + "```" + `json
{
  "id": "5f1c9aa03b7e4d2c8a91f0b2",
  "name": "Kansai loop",
  "start_date": "2026-09-01T00:00:00Z",
  "end_date": "2026-09-10T00:00:00Z",
  "stops": [
    {
      "city": "Kyoto",
      "position": 1,
      "arrival_date": "2026-09-01T00:00:00Z",
      "departure_date": "2026-09-04T00:00:00Z"
    }
  ]
}
` + "```" + `
`
