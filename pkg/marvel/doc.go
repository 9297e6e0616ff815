// Package marvel defines the Marvel Comics API data model used by the
// character list: characters, thumbnails, and the paginated data container.
//
// Responses from /v1/public/characters are wrapped in an envelope:
//
//	{
//	  "code": 200,
//	  "status": "Ok",
//	  "etag": "...",
//	  "attributionText": "Data provided by Marvel. © 2024 MARVEL",
//	  "data": {"offset": 0, "limit": 20, "total": 1562, "count": 20, "results": [...]}
//	}
//
// DecodePage unwraps the envelope and validates the page metadata.
package marvel
