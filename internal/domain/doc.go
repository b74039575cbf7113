// Package domain models UK residential-sale statistics aggregated onto the
// Ordnance Survey National Grid.
//
// # Data Source
//
// An offline build job aggregates HM Land Registry price-paid records into
// square cells of 1km, 5km, 10km and 25km, then uploads one gzip-compressed
// JSON array per grid to an S3-compatible bucket:
//
//	grid_{size}_full.json.gz                 one CellRow per cell, segment and period
//	deltas_overall_{size}.json.gz            one DeltaRow per cell and segment (5km and up)
//	postcode_outcode_index_{size}.json.gz    "{gx}_{gy}" -> postcode outcodes
//
// # Grid Conventions
//
// Cells are keyed by the easting and northing (metres, OSGB36 National Grid) of
// their lower-left corner. Both coordinates are multiples of the grid's cell
// size, so a 5km cell at gx=405000 covers eastings [405000, 410000).
//
// Periods:
//
//	end_month is an ISO date ("2024-12-01") naming the last month of a rolling
//	window. Because the format sorts lexically, the latest period in a snapshot
//	is its maximum end_month string.
//
// Segments:
//
//	property_type  ALL | D (detached) | S (semi) | T (terraced) | F (flat)
//	new_build      ALL | Y | N
//
// # Metrics
//
// median is an absolute price in GBP. delta_gbp and delta_pct are signed
// changes between the earliest and latest period of a delta snapshot and are
// rendered on a divergent scale centred on zero.
package domain
