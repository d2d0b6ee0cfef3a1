package model

import (
	"encoding/json"
	"strings"
)

// EnrichedEvent is the canonical, flat, tab-separable event produced by the
// enrichment chain (spec.md §3). The real canonical event model carries on
// the order of 130 optional string fields; this type carries the subset that
// every enrichment in the chain is expected to read or write plus an Extra
// map for enrichment-specific fields that don't warrant a dedicated column.
// Fields are mutable: later enrichments in the chain may overwrite fields an
// earlier one wrote.
type EnrichedEvent struct {
	// Identifiers
	EventID          string
	EventFingerprint string
	EventName        string
	EventVendor      string
	EventFormat      string
	EventVersion     string

	// Collector / ETL metadata
	CollectorTstamp string
	EtlTstamp       string
	DvceCreatedTstamp string
	DvceSentTstamp    string
	TrueTstamp        string

	// App
	AppID string
	Platform string

	// Tracker
	NameTracker string
	V_Tracker   string
	V_Collector string
	V_Etl       string

	// User / session identifiers (PII-eligible — see PIIExtractor)
	UserID          string
	DomainUserid    string
	NetworkUserid   string
	UserIpaddress   string
	UserFingerprint string
	DomainSessionid string
	DomainSessionidx string

	// Geolocation (PII-eligible)
	GeoCountry   string
	GeoRegion    string
	GeoCity      string
	GeoZipcode   string
	GeoLatitude  string
	GeoLongitude string
	GeoTimezone  string
	IpIsp        string
	IpOrganization string
	IpDomain       string
	IpNetspeed     string

	// Page / referrer
	PageURL        string
	PageTitle      string
	PageReferrer   string
	PageURLScheme  string
	PageURLHost    string
	PageURLPort    string
	PageURLPath    string
	PageURLQuery   string
	PageURLFragment string

	RefrURLScheme string
	RefrURLHost   string
	RefrURLPath   string
	RefrMedium    string
	RefrSource    string
	RefrTerm      string

	// Marketing / campaign
	MktMedium   string
	MktSource   string
	MktTerm     string
	MktContent  string
	MktCampaign string

	// Browser / UA
	UserAgent          string
	BrName             string
	BrFamily           string
	BrVersion          string
	BrType             string
	BrRenderengine     string
	BrLang             string
	BrViewwidth        string
	BrViewheight       string
	BrColordepth       string
	BrCookies          string

	// OS / device
	OsName        string
	OsFamily      string
	OsManufacturer string
	OsTimezone     string
	DvceType       string
	DvceIsmobile   string
	DvceScreenwidth string
	DvceScreenheight string

	// Event-type specific (page ping, transaction, structured event, ...)
	TrCurrency   string
	TrTotal      string
	TrTax        string
	TrShipping   string
	TrCity       string
	TrState      string
	TrCountry    string

	SeCategory string
	SeAction   string
	SeLabel    string
	SeProperty string
	SeValue    string

	// Derived contexts (self-describing JSON blobs attached by enrichments,
	// e.g. "ua_parser_context", "geolocation_context"). Serialized as JSON in
	// the contexts column.
	DerivedContexts []SelfDescribingJSON

	// ContextsIn carries the contexts the collector attached before
	// enrichment ran; enrichments may read but not mutate these.
	ContextsIn []SelfDescribingJSON

	// Unstructured event payload, when EventFormat == "unstruct".
	UnstructEvent *SelfDescribingJSON

	// Extra holds any enrichment-specific field not modeled above, keyed by
	// column name, so new enrichments never require a struct change here.
	Extra map[string]string
}

// SelfDescribingJSON is a versioned, schema-tagged JSON payload, the wire
// shape Snowplow-style trackers use for contexts and unstructured events.
type SelfDescribingJSON struct {
	Schema string      `json:"schema"`
	Data   interface{} `json:"data"`
}

// FieldOrder is the canonical column order used by Serialize. New fields are
// appended, never inserted, so existing downstream consumers of the
// tab-separated format never see their columns shift.
var FieldOrder = []string{
	"app_id", "platform", "etl_tstamp", "collector_tstamp", "dvce_created_tstamp",
	"event", "event_id", "event_vendor", "event_name", "event_format", "event_version",
	"name_tracker", "v_tracker", "v_collector", "v_etl",
	"user_id", "domain_userid", "network_userid", "user_ipaddress", "user_fingerprint",
	"domain_sessionid", "domain_sessionidx",
	"geo_country", "geo_region", "geo_city", "geo_zipcode", "geo_latitude", "geo_longitude",
	"geo_timezone", "ip_isp", "ip_organization", "ip_domain", "ip_netspeed",
	"page_url", "page_title", "page_referrer",
	"page_urlscheme", "page_urlhost", "page_urlport", "page_urlpath", "page_urlquery", "page_urlfragment",
	"refr_urlscheme", "refr_urlhost", "refr_urlpath", "refr_medium", "refr_source", "refr_term",
	"mkt_medium", "mkt_source", "mkt_term", "mkt_content", "mkt_campaign",
	"useragent", "br_name", "br_family", "br_version", "br_type", "br_renderengine",
	"br_lang", "br_viewwidth", "br_viewheight", "br_colordepth", "br_cookies",
	"os_name", "os_family", "os_manufacturer", "os_timezone",
	"dvce_type", "dvce_ismobile", "dvce_screenwidth", "dvce_screenheight",
	"dvce_sent_tstamp", "true_tstamp",
	"tr_currency", "tr_total", "tr_tax", "tr_shipping", "tr_city", "tr_state", "tr_country",
	"se_category", "se_action", "se_label", "se_property", "se_value",
	"contexts", "derived_contexts", "unstruct_event",
}

func (e *EnrichedEvent) field(name string) string {
	switch name {
	case "app_id":
		return e.AppID
	case "platform":
		return e.Platform
	case "etl_tstamp":
		return e.EtlTstamp
	case "collector_tstamp":
		return e.CollectorTstamp
	case "dvce_created_tstamp":
		return e.DvceCreatedTstamp
	case "event":
		return e.EventFormat
	case "event_id":
		return e.EventID
	case "event_vendor":
		return e.EventVendor
	case "event_name":
		return e.EventName
	case "event_format":
		return e.EventFormat
	case "event_version":
		return e.EventVersion
	case "name_tracker":
		return e.NameTracker
	case "v_tracker":
		return e.V_Tracker
	case "v_collector":
		return e.V_Collector
	case "v_etl":
		return e.V_Etl
	case "user_id":
		return e.UserID
	case "domain_userid":
		return e.DomainUserid
	case "network_userid":
		return e.NetworkUserid
	case "user_ipaddress":
		return e.UserIpaddress
	case "user_fingerprint":
		return e.UserFingerprint
	case "domain_sessionid":
		return e.DomainSessionid
	case "domain_sessionidx":
		return e.DomainSessionidx
	case "geo_country":
		return e.GeoCountry
	case "geo_region":
		return e.GeoRegion
	case "geo_city":
		return e.GeoCity
	case "geo_zipcode":
		return e.GeoZipcode
	case "geo_latitude":
		return e.GeoLatitude
	case "geo_longitude":
		return e.GeoLongitude
	case "geo_timezone":
		return e.GeoTimezone
	case "ip_isp":
		return e.IpIsp
	case "ip_organization":
		return e.IpOrganization
	case "ip_domain":
		return e.IpDomain
	case "ip_netspeed":
		return e.IpNetspeed
	case "page_url":
		return e.PageURL
	case "page_title":
		return e.PageTitle
	case "page_referrer":
		return e.PageReferrer
	case "page_urlscheme":
		return e.PageURLScheme
	case "page_urlhost":
		return e.PageURLHost
	case "page_urlport":
		return e.PageURLPort
	case "page_urlpath":
		return e.PageURLPath
	case "page_urlquery":
		return e.PageURLQuery
	case "page_urlfragment":
		return e.PageURLFragment
	case "refr_urlscheme":
		return e.RefrURLScheme
	case "refr_urlhost":
		return e.RefrURLHost
	case "refr_urlpath":
		return e.RefrURLPath
	case "refr_medium":
		return e.RefrMedium
	case "refr_source":
		return e.RefrSource
	case "refr_term":
		return e.RefrTerm
	case "mkt_medium":
		return e.MktMedium
	case "mkt_source":
		return e.MktSource
	case "mkt_term":
		return e.MktTerm
	case "mkt_content":
		return e.MktContent
	case "mkt_campaign":
		return e.MktCampaign
	case "useragent":
		return e.UserAgent
	case "br_name":
		return e.BrName
	case "br_family":
		return e.BrFamily
	case "br_version":
		return e.BrVersion
	case "br_type":
		return e.BrType
	case "br_renderengine":
		return e.BrRenderengine
	case "br_lang":
		return e.BrLang
	case "br_viewwidth":
		return e.BrViewwidth
	case "br_viewheight":
		return e.BrViewheight
	case "br_colordepth":
		return e.BrColordepth
	case "br_cookies":
		return e.BrCookies
	case "os_name":
		return e.OsName
	case "os_family":
		return e.OsFamily
	case "os_manufacturer":
		return e.OsManufacturer
	case "os_timezone":
		return e.OsTimezone
	case "dvce_type":
		return e.DvceType
	case "dvce_ismobile":
		return e.DvceIsmobile
	case "dvce_screenwidth":
		return e.DvceScreenwidth
	case "dvce_screenheight":
		return e.DvceScreenheight
	case "dvce_sent_tstamp":
		return e.DvceSentTstamp
	case "true_tstamp":
		return e.TrueTstamp
	case "tr_currency":
		return e.TrCurrency
	case "tr_total":
		return e.TrTotal
	case "tr_tax":
		return e.TrTax
	case "tr_shipping":
		return e.TrShipping
	case "tr_city":
		return e.TrCity
	case "tr_state":
		return e.TrState
	case "tr_country":
		return e.TrCountry
	case "se_category":
		return e.SeCategory
	case "se_action":
		return e.SeAction
	case "se_label":
		return e.SeLabel
	case "se_property":
		return e.SeProperty
	case "se_value":
		return e.SeValue
	case "contexts":
		return contextsJSON(e.ContextsIn)
	case "derived_contexts":
		return contextsJSON(e.DerivedContexts)
	case "unstruct_event":
		if e.UnstructEvent == nil {
			return ""
		}
		b, err := unstructJSON(*e.UnstructEvent)
		if err != nil {
			return ""
		}
		return b
	default:
		if e.Extra != nil {
			return e.Extra[name]
		}
		return ""
	}
}

// partitionKeyFields lists, in priority order, the event fields a sink may
// derive a partition key from (spec.md §6). Kept in lockstep with
// internal/sink/partition.go's partitionKeyAttrs: both enumerate the same
// attribute names, one on the producing side, one on the consuming side.
var partitionKeyFields = []string{
	"event_id", "event_fingerprint", "domain_userid", "network_userid",
	"user_ipaddress", "domain_sessionid", "user_fingerprint",
}

// PartitionAttributes returns the non-empty partition-key candidate fields
// as a sink.Record-shaped attribute map (spec.md §3 "attributed data", §4.1).
// A sink configured with a specific partitionKey attribute name looks it up
// here directly; one left unconfigured falls back to the same priority
// order this slice is built in.
func (e *EnrichedEvent) PartitionAttributes() map[string]string {
	attrs := make(map[string]string, len(partitionKeyFields))
	for _, name := range partitionKeyFields {
		if v := e.field(name); v != "" {
			attrs[name] = v
		}
	}
	return attrs
}

// Serialize renders the event as a single tab-separated UTF-8 line, in
// FieldOrder column order, with no trailing newline (spec.md §3, §6).
func (e *EnrichedEvent) Serialize() []byte {
	var b strings.Builder
	for i, name := range FieldOrder {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteString(tsvEscape(e.field(name)))
	}
	return []byte(b.String())
}

// tsvEscape replaces tabs, newlines and carriage returns in a field value
// with spaces so the TSV framing can never be broken by user-controlled
// content.
func tsvEscape(s string) string {
	if !strings.ContainsAny(s, "\t\n\r") {
		return s
	}
	r := strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")
	return r.Replace(s)
}

func contextsJSON(ctxs []SelfDescribingJSON) string {
	if len(ctxs) == 0 {
		return ""
	}
	envelope := SelfDescribingJSON{
		Schema: "schema:contexts/jsonschema/1-0-0",
		Data:   ctxs,
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return ""
	}
	return string(b)
}

func unstructJSON(sdj SelfDescribingJSON) (string, error) {
	envelope := SelfDescribingJSON{
		Schema: "schema:unstruct_event/jsonschema/1-0-0",
		Data:   sdj,
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
