// Package export dumps the occupancy log to JSON or CSV and restores it
// from a JSON dump.
//
// The JSON document carries a metadata header and one row per reading:
//
//	{
//	  "metadata": {
//	    "exportDate": "2025-01-15T09:00:00Z",
//	    "totalRecords": 2,
//	    "exportDurationMs": 3,
//	    "timezone": "Europe/Prague"
//	  },
//	  "data": [
//	    {"id": 1, "people_count": 42, "timestamp_utc": "2025-01-15T08:45:00Z", "timestamp_local": "2025-01-15 09:45:00"}
//	  ]
//	}
//
// CSV exports carry the same four columns. Only JSON can be imported back;
// imported rows get fresh ids and keep their timestamps.
//
// HTTP:
//
//	GET  /api/export?format=json|csv
//	POST /api/import   (Content-Type: application/json, disabled by default)
package export
