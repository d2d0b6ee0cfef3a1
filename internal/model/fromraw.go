package model

// NewEnrichedEvent builds an EnrichedEvent from a decoded RawEvent's flat
// field map, the inverse of (*EnrichedEvent).field: known column names land
// in their dedicated struct field, everything else falls into Extra. This is
// the seed the enrichment chain then mutates in place.
func NewEnrichedEvent(fields map[string]string) *EnrichedEvent {
	e := &EnrichedEvent{Extra: map[string]string{}}
	for name, v := range fields {
		e.setField(name, v)
	}
	return e
}

func (e *EnrichedEvent) setField(name, v string) {
	switch name {
	case "app_id":
		e.AppID = v
	case "platform":
		e.Platform = v
	case "etl_tstamp":
		e.EtlTstamp = v
	case "collector_tstamp":
		e.CollectorTstamp = v
	case "dvce_created_tstamp":
		e.DvceCreatedTstamp = v
	case "event", "event_format":
		e.EventFormat = v
	case "event_id":
		e.EventID = v
	case "event_vendor":
		e.EventVendor = v
	case "event_name":
		e.EventName = v
	case "event_version":
		e.EventVersion = v
	case "name_tracker":
		e.NameTracker = v
	case "v_tracker":
		e.V_Tracker = v
	case "v_collector":
		e.V_Collector = v
	case "v_etl":
		e.V_Etl = v
	case "user_id":
		e.UserID = v
	case "domain_userid":
		e.DomainUserid = v
	case "network_userid":
		e.NetworkUserid = v
	case "user_ipaddress":
		e.UserIpaddress = v
	case "user_fingerprint":
		e.UserFingerprint = v
	case "domain_sessionid":
		e.DomainSessionid = v
	case "domain_sessionidx":
		e.DomainSessionidx = v
	case "geo_country":
		e.GeoCountry = v
	case "geo_region":
		e.GeoRegion = v
	case "geo_city":
		e.GeoCity = v
	case "geo_zipcode":
		e.GeoZipcode = v
	case "geo_latitude":
		e.GeoLatitude = v
	case "geo_longitude":
		e.GeoLongitude = v
	case "geo_timezone":
		e.GeoTimezone = v
	case "ip_isp":
		e.IpIsp = v
	case "ip_organization":
		e.IpOrganization = v
	case "ip_domain":
		e.IpDomain = v
	case "ip_netspeed":
		e.IpNetspeed = v
	case "page_url":
		e.PageURL = v
	case "page_title":
		e.PageTitle = v
	case "page_referrer":
		e.PageReferrer = v
	case "page_urlscheme":
		e.PageURLScheme = v
	case "page_urlhost":
		e.PageURLHost = v
	case "page_urlport":
		e.PageURLPort = v
	case "page_urlpath":
		e.PageURLPath = v
	case "page_urlquery":
		e.PageURLQuery = v
	case "page_urlfragment":
		e.PageURLFragment = v
	case "refr_urlscheme":
		e.RefrURLScheme = v
	case "refr_urlhost":
		e.RefrURLHost = v
	case "refr_urlpath":
		e.RefrURLPath = v
	case "refr_medium":
		e.RefrMedium = v
	case "refr_source":
		e.RefrSource = v
	case "refr_term":
		e.RefrTerm = v
	case "mkt_medium":
		e.MktMedium = v
	case "mkt_source":
		e.MktSource = v
	case "mkt_term":
		e.MktTerm = v
	case "mkt_content":
		e.MktContent = v
	case "mkt_campaign":
		e.MktCampaign = v
	case "useragent":
		e.UserAgent = v
	case "br_name":
		e.BrName = v
	case "br_family":
		e.BrFamily = v
	case "br_version":
		e.BrVersion = v
	case "br_type":
		e.BrType = v
	case "br_renderengine":
		e.BrRenderengine = v
	case "br_lang":
		e.BrLang = v
	case "br_viewwidth":
		e.BrViewwidth = v
	case "br_viewheight":
		e.BrViewheight = v
	case "br_colordepth":
		e.BrColordepth = v
	case "br_cookies":
		e.BrCookies = v
	case "os_name":
		e.OsName = v
	case "os_family":
		e.OsFamily = v
	case "os_manufacturer":
		e.OsManufacturer = v
	case "os_timezone":
		e.OsTimezone = v
	case "dvce_type":
		e.DvceType = v
	case "dvce_ismobile":
		e.DvceIsmobile = v
	case "dvce_screenwidth":
		e.DvceScreenwidth = v
	case "dvce_screenheight":
		e.DvceScreenheight = v
	case "dvce_sent_tstamp":
		e.DvceSentTstamp = v
	case "true_tstamp":
		e.TrueTstamp = v
	case "tr_currency":
		e.TrCurrency = v
	case "tr_total":
		e.TrTotal = v
	case "tr_tax":
		e.TrTax = v
	case "tr_shipping":
		e.TrShipping = v
	case "tr_city":
		e.TrCity = v
	case "tr_state":
		e.TrState = v
	case "tr_country":
		e.TrCountry = v
	case "se_category":
		e.SeCategory = v
	case "se_action":
		e.SeAction = v
	case "se_label":
		e.SeLabel = v
	case "se_property":
		e.SeProperty = v
	case "se_value":
		e.SeValue = v
	default:
		if e.Extra == nil {
			e.Extra = map[string]string{}
		}
		e.Extra[name] = v
	}
}
