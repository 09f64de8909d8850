package truenas

// ---------- pool.query ----------

type Pool struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Healthy   bool     `json:"healthy"`
	Size      Number   `json:"size"`
	Allocated Number   `json:"allocated"`
	Free      Number   `json:"free"`
	Scan      *Scan    `json:"scan"`
	Topology  Topology `json:"topology"`
}

type Scan struct {
	Function string `json:"function"`
	State    string `json:"state"`
	Errors   Number `json:"errors"`
	EndTime  Date   `json:"end_time"`
}

type Topology struct {
	Data    []Vdev `json:"data"`
	Log     []Vdev `json:"log"`
	Cache   []Vdev `json:"cache"`
	Spare   []Vdev `json:"spare"`
	Special []Vdev `json:"special"`
	Dedup   []Vdev `json:"dedup"`
}

// All returns every top level vdev.
func (t Topology) All() []Vdev {
	var out []Vdev
	for _, group := range [][]Vdev{t.Data, t.Log, t.Cache, t.Spare, t.Special, t.Dedup} {
		out = append(out, group...)
	}
	return out
}

type Vdev struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Disk     string     `json:"disk"`
	Device   string     `json:"device"`
	Status   string     `json:"status"`
	Stats    *VdevStats `json:"stats"`
	Children []Vdev     `json:"children"`
}

// Label is the disk name if known, else the device, else the vdev name.
func (v Vdev) Label() string {
	switch {
	case v.Disk != "":
		return v.Disk
	case v.Device != "":
		return v.Device
	default:
		return v.Name
	}
}

type VdevStats struct {
	ReadErrors     Number `json:"read_errors"`
	WriteErrors    Number `json:"write_errors"`
	ChecksumErrors Number `json:"checksum_errors"`
}

// ---------- pool.dataset.query ----------

type Dataset struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Pool          string `json:"pool"`
	Used          Number `json:"used"`
	Available     Number `json:"available"`
	CompressRatio Number `json:"compressratio"`
	Encrypted     bool   `json:"encrypted"`
}

// ---------- disk.query ----------

type Disk struct {
	Name   string `json:"name"`
	Serial string `json:"serial"`
	Model  string `json:"model"`
	Size   Number `json:"size"`
	Type   string `json:"type"`
}

// ---------- smart.test.results ----------

type SmartResult struct {
	Disk  string      `json:"disk"`
	Name  string      `json:"name"`
	Tests []SmartTest `json:"tests"`
}

// DiskName prefers disk over name.
func (r SmartResult) DiskName() string {
	if r.Disk != "" {
		return r.Disk
	}
	return r.Name
}

type SmartTest struct {
	Num             int    `json:"num"`
	Description     string `json:"description"`
	Status          string `json:"status"`
	StatusVerbose   string `json:"status_verbose"`
	Lifetime        Number `json:"lifetime"`
	PowerOnHoursAgo Number `json:"power_on_hours_ago"`
}

// ---------- sharing.smb.query / sharing.nfs.query ----------

type SMBShare struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

type NFSShare struct {
	ID      int      `json:"id"`
	Path    string   `json:"path"`
	Paths   []string `json:"paths"`
	Enabled bool     `json:"enabled"`
}

// ---------- cloudsync.query ----------

type CloudSync struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Job         *Job   `json:"job"`
}

type Job struct {
	State    string       `json:"state"`
	Progress *JobProgress `json:"progress"`
}

type JobProgress struct {
	Percent     Number `json:"percent"`
	Description string `json:"description"`
}

// ---------- pool.snapshottask.query ----------

type SnapshotTask struct {
	ID      int        `json:"id"`
	Dataset string     `json:"dataset"`
	Enabled bool       `json:"enabled"`
	State   *TaskState `json:"state"`
}

type TaskState struct {
	State string `json:"state"`
}

// ---------- alert.list ----------

type Alert struct {
	UUID      string `json:"uuid"`
	Level     string `json:"level"`
	Klass     string `json:"klass"`
	Formatted string `json:"formatted"`
	Dismissed bool   `json:"dismissed"`
}

// ---------- system.info ----------

type SystemInfo struct {
	Version       string    `json:"version"`
	Hostname      string    `json:"hostname"`
	SystemProduct string    `json:"system_product"`
	Physmem       Number    `json:"physmem"`
	UptimeSeconds Number    `json:"uptime_seconds"`
	Loadavg       []float64 `json:"loadavg"`
}

// ---------- reporting ----------

type ReportingGraph struct {
	Name        string   `json:"name"`
	Identifiers []string `json:"identifiers"`
}

type ReportingQuery struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier,omitempty"`
}

type ReportingData struct {
	Name       string     `json:"name"`
	Identifier string     `json:"identifier"`
	Legend     []string   `json:"legend"`
	Data       [][]Number `json:"data"`
}

// Last returns the value of the legend column in the newest row that has it.
func (d ReportingData) Last(column string) (float64, bool) {
	idx := -1
	for i, l := range d.Legend {
		if l == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, false
	}
	for r := len(d.Data) - 1; r >= 0; r-- {
		row := d.Data[r]
		if idx < len(row) && row[idx].Valid {
			return row[idx].Value, true
		}
	}
	return 0, false
}

// ---------- app.query ----------

type App struct {
	Name             string `json:"name"`
	State            string `json:"state"`
	UpgradeAvailable bool   `json:"upgrade_available"`
}

// ---------- interface.query ----------

type Interface struct {
	Name  string         `json:"name"`
	State InterfaceState `json:"state"`
}

type InterfaceState struct {
	LinkState string `json:"link_state"`
}

// ---------- service.query ----------

type Service struct {
	Service string `json:"service"`
	State   string `json:"state"`
	Enable  bool   `json:"enable"`
}
