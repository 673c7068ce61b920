package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/world-observer/internal/eventbus"
	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/session"
	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
)

// ColumnLoader - хранилище сохраненных колонн (storage.ColumnStore)
type ColumnLoader interface {
	LoadColumn(c vec.Coord2D) (*world.Column, bool, error)
	Coords() ([]vec.Coord2D, error)
}

// RestServer - HTTP поверхность чтения состояния наблюдаемой сессии
type RestServer struct {
	router  *gin.Engine
	server  *http.Server
	state   *session.State
	bus     eventbus.EventBus
	store   ColumnLoader
	port    string
	metrics *ProcessMetrics
	log     *logging.Logger
}

// Config содержит зависимости REST сервера
type Config struct {
	Port       string                // порт, например ":8088"
	State      *session.State        // обязательное состояние сессии
	Bus        eventbus.EventBus     // шина для /api/events/ws; nil - маршрут отключен
	Store      ColumnLoader          // сохраненные колонны; nil - только память
	Registerer prometheus.Registerer // куда регистрировать HTTP-метрики; nil - никуда
	Gatherer   prometheus.Gatherer   // источник /metrics; nil - prometheus.DefaultGatherer
}

// NewRestServer создает сервер и настраивает маршруты
func NewRestServer(cfg Config) *RestServer {
	if cfg.Port == "" {
		cfg.Port = ":8088"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	rs := &RestServer{
		router:  router,
		state:   cfg.State,
		bus:     cfg.Bus,
		store:   cfg.Store,
		port:    cfg.Port,
		metrics: NewProcessMetrics(),
		log:     logging.GetAPILogger(),
	}

	router.Use(otelgin.Middleware("observer_api"))
	router.Use(requestLogger(rs.log))
	router.Use(newHTTPMetrics("observer_api", cfg.Registerer).handler())
	router.Use(cors())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	rs.setupRoutes()
	return rs
}

func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/position", rs.handlePosition)
		api.GET("/bounds", rs.handleBounds)
		api.GET("/chunks", rs.handleChunks)
		api.GET("/chunks/:x/:z", rs.handleChunk)
		api.POST("/chunks/persisted", rs.handleMarkPersisted)
		api.POST("/chunks/prune", rs.handlePrune)
		api.GET("/stored", rs.handleStored)
		if rs.bus != nil {
			api.GET("/events/ws", rs.handleEvents)
		}
	}
}

// Handler возвращает http.Handler (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает сервер; блокируется до Stop
func (rs *RestServer) Start() error {
	rs.server = &http.Server{
		Addr:              rs.port,
		Handler:           rs.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	rs.log.Info("🌐 REST API listening on %s", rs.port)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop корректно останавливает сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.server == nil {
		return nil
	}
	return rs.server.Shutdown(ctx)
}

// GenericResponse - общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CoordJSON - координаты колонны в JSON
type CoordJSON struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (c CoordJSON) coord() vec.Coord2D { return vec.Coord2D{X: c.X, Z: c.Z} }

func toCoordJSON(c vec.Coord2D) CoordJSON { return CoordJSON{X: c.X, Z: c.Z} }

// ChunkSummary - элемент списка колонн
type ChunkSummary struct {
	CoordJSON
	FullChunk bool      `json:"full_chunk"`
	Sections  int       `json:"sections"`
	Persisted bool      `json:"persisted"`
	DecodedAt time.Time `json:"decoded_at"`
}

// SectionDetail - описание одной секции
type SectionDetail struct {
	Y           int  `json:"y"`
	PaletteSize int  `json:"palette_size"`
	Direct      bool `json:"direct"`
	NonAir      int  `json:"non_air"`
	HasSkyLight bool `json:"has_sky_light"`
}

// ChunkDetail - подробности о колонне
type ChunkDetail struct {
	ChunkSummary
	Mask       uint32          `json:"mask"`
	Source     string          `json:"source"` // memory | storage
	SectionSet []SectionDetail `json:"section_list"`
}

func summarize(col *world.Column, persisted bool) ChunkSummary {
	return ChunkSummary{
		CoordJSON: toCoordJSON(col.Coords),
		FullChunk: col.FullChunk,
		Sections:  col.PresentSections(),
		Persisted: persisted,
		DecodedAt: col.DecodedAt,
	}
}

func detail(col *world.Column, persisted bool, source string) ChunkDetail {
	d := ChunkDetail{
		ChunkSummary: summarize(col, persisted),
		Mask:         col.SectionMask(),
		Source:       source,
		SectionSet:   []SectionDetail{},
	}
	for _, sec := range col.Sections {
		if sec == nil {
			continue
		}
		d.SectionSet = append(d.SectionSet, SectionDetail{
			Y:           sec.Y,
			PaletteSize: len(sec.Palette),
			Direct:      sec.Palette == nil,
			NonAir:      sec.NonAirCount(),
			HasSkyLight: sec.SkyLight != nil,
		})
	}
	return d
}

// handleHealth - состояние процесса наблюдателя
func (rs *RestServer) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"time":    time.Now().Unix(),
		"uptime":  rs.metrics.GetUptime(),
		"columns": rs.state.ColumnCount(),
		"memory":  rs.metrics.GetMemoryStats(),
	}
	if cpu, err := rs.metrics.GetCPUUsage(); err == nil {
		resp["cpu_percent"] = cpu
	}
	if rss, err := rs.metrics.GetRSS(); err == nil {
		resp["rss_mb"] = rss
	}
	c.JSON(http.StatusOK, resp)
}

func (rs *RestServer) handlePosition(c *gin.Context) {
	pos, ok := rs.state.CurrentPosition()
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "позиция еще неизвестна"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "ok",
		Data: gin.H{
			"x":     pos.X,
			"y":     pos.Y,
			"z":     pos.Z,
			"chunk": toCoordJSON(pos.ChunkPos()),
		},
	})
}

func (rs *RestServer) handleBounds(c *gin.Context) {
	b, ok := rs.state.Bounds()
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "колонны не загружены"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "ok",
		Data:    gin.H{"min_x": b.MinX, "max_x": b.MaxX, "min_z": b.MinZ, "max_z": b.MaxZ},
	})
}

// handleChunks возвращает снимок колонн; ?persisted=false оставляет только несохраненные
func (rs *RestServer) handleChunks(c *gin.Context) {
	var filter *bool
	if raw := c.Query("persisted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Message: "неверный параметр persisted"})
			return
		}
		filter = &v
	}

	chunks := []ChunkSummary{}
	for _, e := range rs.state.ChunkSnapshot() {
		if filter != nil && e.Persisted != *filter {
			continue
		}
		chunks = append(chunks, summarize(e.Column, e.Persisted))
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "ok",
		Data:    gin.H{"chunks": chunks, "total": len(chunks)},
	})
}

func parseCoord(c *gin.Context) (vec.Coord2D, bool) {
	x, errX := strconv.Atoi(c.Param("x"))
	z, errZ := strconv.Atoi(c.Param("z"))
	if errX != nil || errZ != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "координаты должны быть целыми"})
		return vec.Coord2D{}, false
	}
	return vec.Coord2D{X: x, Z: z}, true
}

// handleChunk ищет колонну в памяти, затем в хранилище
func (rs *RestServer) handleChunk(c *gin.Context) {
	coord, ok := parseCoord(c)
	if !ok {
		return
	}

	if col, ok := rs.state.Column(coord); ok {
		c.JSON(http.StatusOK, GenericResponse{
			Success: true,
			Message: "ok",
			Data:    detail(col, rs.state.IsPersisted(coord), "memory"),
		})
		return
	}

	if rs.store != nil {
		col, ok, err := rs.store.LoadColumn(coord)
		if err != nil {
			rs.log.Error("load column %s: %v", coord, err)
			c.JSON(http.StatusInternalServerError, GenericResponse{Message: "ошибка хранилища"})
			return
		}
		if ok {
			c.JSON(http.StatusOK, GenericResponse{
				Success: true,
				Message: "ok",
				Data:    detail(col, true, "storage"),
			})
			return
		}
	}

	c.JSON(http.StatusNotFound, GenericResponse{Message: "колонна не найдена"})
}

// MarkPersistedRequest - внешний сборщик сообщает о сохраненных колоннах
type MarkPersistedRequest struct {
	Chunks []CoordJSON `json:"chunks" binding:"required"`
}

func (rs *RestServer) handleMarkPersisted(c *gin.Context) {
	var req MarkPersistedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный формат запроса: " + err.Error()})
		return
	}

	coords := make([]vec.Coord2D, len(req.Chunks))
	for i, ch := range req.Chunks {
		coords[i] = ch.coord()
	}
	marked := rs.state.MarkPersisted(coords)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "ok",
		Data:    gin.H{"marked": marked, "requested": len(coords)},
	})
}

// PruneRequest - удалить из памяти колонны дальше radius от центра
type PruneRequest struct {
	Center *CoordJSON `json:"center"` // nil - колонна текущей позиции
	Radius int        `json:"radius"`
}

func (rs *RestServer) handlePrune(c *gin.Context) {
	var req PruneRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Radius < 0 {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный формат запроса"})
		return
	}

	var center vec.Coord2D
	if req.Center != nil {
		center = req.Center.coord()
	} else {
		pos, ok := rs.state.CurrentPosition()
		if !ok {
			c.JSON(http.StatusConflict, GenericResponse{Message: "позиция еще неизвестна"})
			return
		}
		center = pos.ChunkPos()
	}

	evicted := rs.state.EvictOutOfRange(center, req.Radius)
	out := make([]CoordJSON, len(evicted))
	for i, e := range evicted {
		out[i] = toCoordJSON(e)
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "ok",
		Data:    gin.H{"evicted": out, "remaining": rs.state.ColumnCount()},
	})
}

// handleStored - координаты колонн в хранилище
func (rs *RestServer) handleStored(c *gin.Context) {
	if rs.store == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: "хранилище отключено"})
		return
	}
	coords, err := rs.store.Coords()
	if err != nil {
		rs.log.Error("list stored columns: %v", err)
		c.JSON(http.StatusInternalServerError, GenericResponse{Message: "ошибка хранилища"})
		return
	}
	out := make([]CoordJSON, len(coords))
	for i, co := range coords {
		out[i] = toCoordJSON(co)
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "ok",
		Data:    gin.H{"chunks": out, "total": len(out)},
	})
}
