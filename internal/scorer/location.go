package scorer

import (
	"strings"

	"jobboard/matching-service/internal/model"
)

// Region groups provinces into north, central and south.
type Region string

const (
	RegionNorth   Region = "north"
	RegionCentral Region = "central"
	RegionSouth   Region = "south"
)

const (
	sameRegionScore      = 60
	unknownLocationScore = 50
)

var regionProvinces = map[Region][]string{
	RegionNorth: {
		"ha_noi", "hai_phong", "quang_ninh", "bac_ninh", "hai_duong",
		"hung_yen", "thai_binh", "ha_nam", "nam_dinh", "ninh_binh",
		"vinh_phuc", "bac_giang", "phu_tho", "thai_nguyen", "bac_kan",
		"cao_bang", "lang_son", "tuyen_quang", "ha_giang", "lao_cai",
		"yen_bai", "lai_chau", "dien_bien", "son_la", "hoa_binh",
	},
	RegionCentral: {
		"thanh_hoa", "nghe_an", "ha_tinh", "quang_binh", "quang_tri",
		"thua_thien_hue", "da_nang", "quang_nam", "quang_ngai",
		"binh_dinh", "phu_yen", "khanh_hoa", "ninh_thuan", "binh_thuan",
		"kon_tum", "gia_lai", "dak_lak", "dak_nong", "lam_dong",
	},
	RegionSouth: {
		"ho_chi_minh", "binh_duong", "dong_nai", "ba_ria_vung_tau",
		"tay_ninh", "binh_phuoc", "long_an", "tien_giang", "ben_tre",
		"tra_vinh", "vinh_long", "dong_thap", "an_giang", "kien_giang",
		"can_tho", "hau_giang", "soc_trang", "bac_lieu", "ca_mau",
	},
}

var provinceRegion = func() map[string]Region {
	m := make(map[string]Region)
	for region, codes := range regionProvinces {
		for _, code := range codes {
			m[code] = region
		}
	}
	return m
}()

// RegionOf returns the region of a province code, or "" when unknown.
func RegionOf(code string) Region {
	return provinceRegion[strings.ToLower(strings.TrimSpace(code))]
}

// Location scores 100 for remote jobs or a shared province, 60 for a shared
// region and 0 otherwise. Missing location data on either side is neutral.
func Location(job *model.Job, cand *model.Candidate) model.DimensionResult {
	if job.IsRemote {
		return result(100, StatusPerfect, map[string]any{"is_remote": true})
	}

	acceptable := cand.AcceptableProvinces()
	if job.Province == nil || job.Province.Code == "" || len(acceptable) == 0 {
		return result(unknownLocationScore, StatusNotSpecified, map[string]any{"is_remote": false})
	}

	jobCode := strings.ToLower(job.Province.Code)
	jobRegion := RegionOf(jobCode)
	details := map[string]any{
		"is_remote":    false,
		"job_province": jobCode,
		"job_region":   string(jobRegion),
	}

	sameRegion := false
	for _, p := range acceptable {
		code := strings.ToLower(p.Code)
		if code == jobCode {
			details["matched_province"] = code
			return result(100, StatusPerfect, details)
		}
		if jobRegion != "" && RegionOf(code) == jobRegion {
			sameRegion = true
		}
	}
	if sameRegion {
		return result(sameRegionScore, StatusGood, details)
	}
	return result(0, StatusPoor, details)
}
