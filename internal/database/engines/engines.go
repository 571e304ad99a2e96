// Package engines links every supported database driver into the binary.
// Import it for side effects wherever database.Open is used:
//
//	import _ "github.com/koustreak/piiscan/internal/database/engines"
package engines

import (
	_ "github.com/koustreak/piiscan/internal/database/mysql"
	_ "github.com/koustreak/piiscan/internal/database/postgres"
	_ "github.com/koustreak/piiscan/internal/database/redshift"
	_ "github.com/koustreak/piiscan/internal/database/sqlserver"
)
