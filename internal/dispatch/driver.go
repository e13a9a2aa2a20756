package dispatch

import (
	"math"
	"time"
)

// Coordinate 经纬度坐标
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Driver 骑手 GORM 模型。
// IsAvailable 在订单生命周期内只由派单协调器写：
// 占用（Claim）置 false，订单终态或改派时释放置 true。
type Driver struct {
	ID                  string    `gorm:"primaryKey;size:36" json:"id"`
	Name                string    `gorm:"size:64" json:"name"`
	IsOnline            bool      `gorm:"index;not null;default:false" json:"is_online"`
	IsAvailable         bool      `gorm:"index;not null;default:false" json:"is_available"`
	Lat                 float64   `gorm:"not null;default:0" json:"lat"`
	Lng                 float64   `gorm:"not null;default:0" json:"lng"`
	Rating              float64   `gorm:"not null;default:0" json:"rating"`
	CompletedDeliveries int       `gorm:"not null;default:0" json:"completed_deliveries"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Location 骑手当前位置
func (d Driver) Location() Coordinate {
	return Coordinate{Lat: d.Lat, Lng: d.Lng}
}

const earthRadiusMeters = 6371000.0

// HaversineMeters 两坐标间的球面距离（米）。
func HaversineMeters(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
