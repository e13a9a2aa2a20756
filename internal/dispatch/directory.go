package dispatch

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/FleetEats/FleetEats/internal/order"
)

// Directory 骑手目录端口。
// Claim 必须原子执行“可用则占用”，并发抢同一骑手时恰有一方成功。
type Directory interface {
	FindNear(ctx context.Context, center Coordinate, radiusMeters float64) ([]Driver, error)
	Claim(ctx context.Context, driverID string) error
	Release(ctx context.Context, driverID string) error
}

// GormDirectory Directory 的 MySQL 实现。
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// FindNear 粗筛用经纬度包围盒下推到 SQL，精确距离在内存里用球面距离过滤。
func (d *GormDirectory) FindNear(ctx context.Context, center Coordinate, radiusMeters float64) ([]Driver, error) {
	if d == nil || d.db == nil {
		return nil, fmt.Errorf("directory db is nil")
	}

	// 1 度纬度 ≈ 111km；经度按纬度收缩，这里取纬度范围做保守包围盒
	degrees := radiusMeters/111000.0 + 0.01

	var drivers []Driver
	err := d.db.WithContext(ctx).
		Where("is_online = ? AND is_available = ?", true, true).
		Where("lat BETWEEN ? AND ?", center.Lat-degrees, center.Lat+degrees).
		Where("lng BETWEEN ? AND ?", center.Lng-degrees, center.Lng+degrees).
		Find(&drivers).Error
	if err != nil {
		return nil, &order.RemoteError{Service: "driver_directory", Err: err}
	}

	out := drivers[:0]
	for _, drv := range drivers {
		if HaversineMeters(center, drv.Location()) <= radiusMeters {
			out = append(out, drv)
		}
	}
	return out, nil
}

// Claim 单条 UPDATE 完成 check-and-set：
// 只有 is_available=1 的行会被占用，影响行数为 0 即骑手已被抢走。
func (d *GormDirectory) Claim(ctx context.Context, driverID string) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("directory db is nil")
	}
	res := d.db.WithContext(ctx).Model(&Driver{}).
		Where("id = ? AND is_available = ?", driverID, true).
		Update("is_available", false)
	if res.Error != nil {
		return &order.RemoteError{Service: "driver_directory", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return order.ErrDriverNotAvailable
	}
	return nil
}

// Release 幂等释放：已可用的骑手再释放是 no-op。
func (d *GormDirectory) Release(ctx context.Context, driverID string) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("directory db is nil")
	}
	err := d.db.WithContext(ctx).Model(&Driver{}).
		Where("id = ?", driverID).
		Update("is_available", true).Error
	if err != nil {
		return &order.RemoteError{Service: "driver_directory", Err: err}
	}
	return nil
}

// MemoryDirectory 进程内目录，测试和本地开发用。
type MemoryDirectory struct {
	mu      sync.Mutex
	drivers map[string]*Driver
}

func NewMemoryDirectory(drivers ...Driver) *MemoryDirectory {
	m := &MemoryDirectory{drivers: make(map[string]*Driver)}
	for i := range drivers {
		d := drivers[i]
		m.drivers[d.ID] = &d
	}
	return m
}

func (m *MemoryDirectory) FindNear(ctx context.Context, center Coordinate, radiusMeters float64) ([]Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Driver
	for _, d := range m.drivers {
		if !d.IsOnline || !d.IsAvailable {
			continue
		}
		if HaversineMeters(center, d.Location()) <= radiusMeters {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *MemoryDirectory) Claim(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok || !d.IsAvailable {
		return order.ErrDriverNotAvailable
	}
	d.IsAvailable = false
	return nil
}

func (m *MemoryDirectory) Release(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.drivers[driverID]; ok {
		d.IsAvailable = true
	}
	return nil
}

// Driver 查询骑手快照（测试观察用）。
func (m *MemoryDirectory) Driver(driverID string) (Driver, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.drivers[driverID]; ok {
		return *d, true
	}
	return Driver{}, false
}
