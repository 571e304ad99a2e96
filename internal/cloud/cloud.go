// Package cloud infers where a database is hosted from its connection host.
// Classification is purely lexical: no DNS lookups are made.
package cloud

import (
	"net"
	"strings"
)

// Provider identifies a hosting provider.
type Provider string

const (
	ProviderAWS       Provider = "aws"
	ProviderGCP       Provider = "gcp"
	ProviderAzure     Provider = "azure"
	ProviderOnPremise Provider = "on-premise"
	ProviderUnknown   Provider = "unknown"
)

// Jurisdiction is a coarse data-residency label derived from the region.
type Jurisdiction string

const (
	JurisdictionEU      Jurisdiction = "EU"
	JurisdictionNonEU   Jurisdiction = "non-EU"
	JurisdictionUnknown Jurisdiction = "unknown"
)

// Info describes the hosting environment of a scan target.
type Info struct {
	Provider       Provider     `json:"provider"`
	Service        string       `json:"service"`
	Region         string       `json:"region,omitempty"`
	Jurisdiction   Jurisdiction `json:"jurisdiction"`
	ComplianceNote string       `json:"complianceNote"`
}

// rule matches a normalised host and fills in Info. Rules are evaluated in
// order and the first match wins.
type rule struct {
	match func(host string) bool
	build func(host string) Info
}

var rules = []rule{
	// AWS: reader must be ruled out before writer, since "cluster-ro-"
	// contains "cluster-".
	{
		match: func(h string) bool { return isRDS(h) && strings.Contains(h, "cluster-ro-") },
		build: func(h string) Info { return aws(h, "rds", "Aurora (reader endpoint)") },
	},
	{
		match: func(h string) bool { return isRDS(h) && strings.Contains(h, "cluster-") },
		build: func(h string) Info { return aws(h, "rds", "Aurora (writer endpoint)") },
	},
	{
		match: isRDS,
		build: func(h string) Info { return aws(h, "rds", "RDS") },
	},
	{
		match: func(h string) bool { return hasAnySuffix(h, ".redshift-serverless.amazonaws.com") },
		build: func(h string) Info { return aws(h, "redshift-serverless", "Redshift Serverless") },
	},
	{
		match: func(h string) bool { return hasAnySuffix(h, ".redshift.amazonaws.com", ".redshift.amazonaws.com.cn") },
		build: func(h string) Info { return aws(h, "redshift", "Redshift") },
	},

	// Google Cloud SQL: socket path, instance connection name, PSC DNS.
	{
		match: func(h string) bool { return strings.HasPrefix(h, "/cloudsql/") },
		build: func(h string) Info { return cloudSQLConnName(strings.TrimPrefix(h, "/cloudsql/")) },
	},
	{
		match: isConnectionName,
		build: cloudSQLConnName,
	},
	{
		match: func(h string) bool { return hasAnySuffix(h, ".sql.goog") },
		build: func(h string) Info {
			return gcp(labelBefore(h, "sql"), "Cloud SQL (Private Service Connect)")
		},
	},

	// Azure
	{
		match: func(h string) bool { return hasAnySuffix(h, ".database.windows.net") },
		build: func(string) Info { return azure("Azure SQL Database") },
	},
	{
		match: func(h string) bool { return hasAnySuffix(h, ".sql.azuresynapse.net") },
		build: func(string) Info { return azure("Azure Synapse Analytics") },
	},
	{
		match: func(h string) bool { return hasAnySuffix(h, ".postgres.database.azure.com") },
		build: func(string) Info { return azure("Azure Database for PostgreSQL") },
	},
	{
		match: func(h string) bool { return hasAnySuffix(h, ".mysql.database.azure.com") },
		build: func(string) Info { return azure("Azure Database for MySQL") },
	},
	{
		match: func(h string) bool { return hasAnySuffix(h, ".mariadb.database.azure.com") },
		build: func(string) Info { return azure("Azure Database for MariaDB") },
	},

	// Private networks are the final fallback before unknown.
	{
		match: isPrivate,
		build: func(string) Info {
			return Info{
				Provider:       ProviderOnPremise,
				Service:        "self-hosted",
				Jurisdiction:   JurisdictionUnknown,
				ComplianceNote: "Self-hosted database: data residency and security controls are your responsibility; document them in the GDPR Art. 30 record of processing.",
			}
		},
	},
}

// ClassifyHost returns hosting information for a connection host. The host
// may carry a port, a trailing dot or surrounding whitespace. Unrecognised
// hosts yield ProviderUnknown.
func ClassifyHost(host string) Info {
	h := normalize(host)
	if h != "" {
		for _, r := range rules {
			if r.match(h) {
				return r.build(h)
			}
		}
	}
	return Info{
		Provider:       ProviderUnknown,
		Service:        "unknown",
		Jurisdiction:   JurisdictionUnknown,
		ComplianceNote: "Hosting location could not be determined; verify data residency manually.",
	}
}

func normalize(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(h, "/") {
		return h
	}
	// Only strip a port when the remainder still looks like a host; Cloud SQL
	// connection names also contain colons.
	if hostOnly, port, err := net.SplitHostPort(h); err == nil && isDigits(port) {
		h = hostOnly
	}
	h = strings.TrimPrefix(strings.TrimSuffix(h, "]"), "[")
	return strings.TrimSuffix(h, ".")
}

func isRDS(h string) bool {
	return hasAnySuffix(h, ".rds.amazonaws.com", ".rds.amazonaws.com.cn")
}

func aws(h, serviceLabel, service string) Info {
	region := labelBefore(h, serviceLabel)
	info := Info{
		Provider:     ProviderAWS,
		Service:      service,
		Region:       region,
		Jurisdiction: jurisdictionFor(region),
	}
	if strings.HasSuffix(h, ".cn") {
		info.Jurisdiction = JurisdictionNonEU
	}
	info.ComplianceNote = note(info)
	return info
}

func gcp(region, service string) Info {
	info := Info{
		Provider:     ProviderGCP,
		Service:      service,
		Region:       region,
		Jurisdiction: jurisdictionFor(region),
	}
	info.ComplianceNote = note(info)
	return info
}

func azure(service string) Info {
	return Info{
		Provider:       ProviderAzure,
		Service:        service,
		Jurisdiction:   JurisdictionUnknown,
		ComplianceNote: "Azure endpoints do not encode their region; confirm the server's region in the portal before relying on EU residency.",
	}
}

// cloudSQLConnName parses "project:region:instance". Domain-scoped projects
// ("example.com:project") contribute an extra leading segment.
func cloudSQLConnName(name string) Info {
	parts := strings.Split(name, ":")
	region := ""
	if len(parts) >= 3 {
		region = parts[len(parts)-2]
	}
	return gcp(region, "Cloud SQL")
}

func isConnectionName(h string) bool {
	if net.ParseIP(h) != nil {
		return false
	}
	parts := strings.Split(h, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, "/ ") {
			return false
		}
	}
	return true
}

func isPrivate(h string) bool {
	if h == "localhost" || strings.HasSuffix(h, ".localhost") || strings.HasSuffix(h, ".local") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}

// labelBefore returns the DNS label immediately preceding marker, e.g. the
// region in "x.y.eu-west-1.rds.amazonaws.com".
func labelBefore(h, marker string) string {
	labels := strings.Split(h, ".")
	for i := 1; i < len(labels); i++ {
		if labels[i] == marker {
			return labels[i-1]
		}
	}
	return ""
}

func jurisdictionFor(region string) Jurisdiction {
	switch {
	case region == "":
		return JurisdictionUnknown
	case strings.HasPrefix(region, "eu-"), strings.HasPrefix(region, "europe-"):
		return JurisdictionEU
	default:
		return JurisdictionNonEU
	}
}

func note(info Info) string {
	switch info.Jurisdiction {
	case JurisdictionEU:
		return "Hosted in an EU region (" + info.Region + "); GDPR applies directly and no third-country transfer safeguards are needed for storage."
	case JurisdictionNonEU:
		return "Hosted outside the EU (" + info.Region + "); personal data of EU residents requires a GDPR Chapter V transfer mechanism such as SCCs."
	default:
		return "Region could not be derived from the host; verify data residency for GDPR purposes."
	}
}

func hasAnySuffix(h string, suffixes ...string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(h, s) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
