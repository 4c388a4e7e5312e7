package forecast

import (
	"sort"
	"strings"
	"unicode"

	"github.com/wonny/merchops/backend/internal/contracts"
)

// ResolveStrategy 벤더 해석 전략 이름
type ResolveStrategy string

const (
	StrategyCode       ResolveStrategy = "code"
	StrategyName       ResolveStrategy = "name"
	StrategyNormalized ResolveStrategy = "normalized"
	StrategySubstring  ResolveStrategy = "substring"
)

// Resolution 해석 결과
type Resolution struct {
	Vendor   contracts.Vendor
	Strategy ResolveStrategy
}

type resolveStep struct {
	name ResolveStrategy
	fn   func(code, name string) (contracts.Vendor, bool)
}

// VendorResolver 벤더 코드/이름 → 벤더 해석기
// 코드 일치 → 이름 일치(소문자) → 구두점 제거 일치 → 포함 관계 순으로 시도, 첫 성공에서 종료
type VendorResolver struct {
	byCode       map[string]contracts.Vendor
	byName       map[string]contracts.Vendor
	byNormalized map[string]contracts.Vendor
	vendors      []contracts.Vendor // 이름 길이 내림차순, ID 오름차순
	steps        []resolveStep
}

// NewVendorResolver 벤더 목록으로 인덱스 생성
func NewVendorResolver(vendors []contracts.Vendor) *VendorResolver {
	r := &VendorResolver{
		byCode:       make(map[string]contracts.Vendor),
		byName:       make(map[string]contracts.Vendor),
		byNormalized: make(map[string]contracts.Vendor),
	}

	sorted := make([]contracts.Vendor, len(vendors))
	copy(sorted, vendors)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, v := range sorted {
		// 동일 키는 ID가 작은 벤더 우선
		if code := strings.ToLower(strings.TrimSpace(v.Code)); code != "" {
			if _, ok := r.byCode[code]; !ok {
				r.byCode[code] = v
			}
		}
		if name := strings.ToLower(strings.TrimSpace(v.Name)); name != "" {
			if _, ok := r.byName[name]; !ok {
				r.byName[name] = v
			}
		}
		if norm := normalizeName(v.Name); norm != "" {
			if _, ok := r.byNormalized[norm]; !ok {
				r.byNormalized[norm] = v
			}
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := len(normalizeName(sorted[i].Name)), len(normalizeName(sorted[j].Name))
		if li != lj {
			return li > lj
		}
		return sorted[i].ID < sorted[j].ID
	})
	r.vendors = sorted

	r.steps = []resolveStep{
		{StrategyCode, r.matchCode},
		{StrategyName, r.matchName},
		{StrategyNormalized, r.matchNormalized},
		{StrategySubstring, r.matchSubstring},
	}

	return r
}

// Resolve 벤더 해석, 실패 시 false
func (r *VendorResolver) Resolve(code, name string) (Resolution, bool) {
	for _, step := range r.steps {
		if v, ok := step.fn(code, name); ok {
			return Resolution{Vendor: v, Strategy: step.name}, true
		}
	}
	return Resolution{}, false
}

func (r *VendorResolver) matchCode(code, _ string) (contracts.Vendor, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return contracts.Vendor{}, false
	}
	v, ok := r.byCode[code]
	return v, ok
}

func (r *VendorResolver) matchName(_, name string) (contracts.Vendor, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return contracts.Vendor{}, false
	}
	v, ok := r.byName[name]
	return v, ok
}

func (r *VendorResolver) matchNormalized(_, name string) (contracts.Vendor, bool) {
	norm := normalizeName(name)
	if norm == "" {
		return contracts.Vendor{}, false
	}
	v, ok := r.byNormalized[norm]
	return v, ok
}

func (r *VendorResolver) matchSubstring(_, name string) (contracts.Vendor, bool) {
	norm := normalizeName(name)
	// 너무 짧은 이름은 오매칭 위험
	if len(norm) < 3 {
		return contracts.Vendor{}, false
	}
	for _, v := range r.vendors {
		vn := normalizeName(v.Name)
		if len(vn) < 3 {
			continue
		}
		if strings.Contains(norm, vn) || strings.Contains(vn, norm) {
			return v, true
		}
	}
	return contracts.Vendor{}, false
}

// normalizeName 소문자 + 문자/숫자만 유지
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
